package core

import "go.uber.org/zap"

type zapLogger struct {
	log *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to Logger. A nil logger discards output.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return zapLogger{log: l.Sugar()}
}

func (z zapLogger) Debug(msg string, args ...any) { z.log.Debugw(msg, args...) }
func (z zapLogger) Info(msg string, args ...any)  { z.log.Infow(msg, args...) }
func (z zapLogger) Warn(msg string, args ...any)  { z.log.Warnw(msg, args...) }
func (z zapLogger) Error(msg string, args ...any) { z.log.Errorw(msg, args...) }

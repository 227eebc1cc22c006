package core

import (
	"context"
	"time"
)

// Logger is the structured logging surface the service depends on. Args are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// MetricsRecorder observes service action outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan is an in-flight unit of traced work.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service actions.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus is the outcome recorded in an AuditEntry.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry records one service action. Action names the service call
// (open, execute, undo, redo, commit, archive, restore) and Operation the
// ledger operation, root set or archive key it acted on.
type AuditEntry struct {
	Action    string
	Operation string
	Status    AuditStatus
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// AuditRecorder receives an entry for every service action.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// DefaultHistoryLimit bounds the undo stack when no limit is configured.
const DefaultHistoryLimit = 100

type serviceOptions struct {
	clock        Clock
	logger       Logger
	metrics      MetricsRecorder
	tracer       Tracer
	audit        AuditRecorder
	historyLimit int
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:        ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:       noopLogger{},
		metrics:      noopMetricsRecorder{},
		tracer:       noopTracer{},
		audit:        noopAuditRecorder{},
		historyLimit: DefaultHistoryLimit,
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

// WithClock overrides the service clock.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(a AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if a != nil {
			o.audit = a
		}
	}
}

// WithHistoryLimit bounds the number of undoable operations kept. Values
// below one keep the default.
func WithHistoryLimit(n int) ServiceOption {
	return func(o *serviceOptions) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

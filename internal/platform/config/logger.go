package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds a zap logger at LogLevel. LogFormat "console" selects the
// development encoder; anything else logs JSON.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}

// File: internal/services/logger.go
package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines common logging interface for all services
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// LogOptions selects level and encoding of the production logger.
type LogOptions struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// ProductionLogger is a structured logger backed by zap.
type ProductionLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger builds a logger tagged with the service name.
func NewLogger(service string, opts LogOptions) (*ProductionLogger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "", "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = level > zapcore.DebugLevel

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return NewLoggerFromZap(z, service), nil
}

// NewLoggerFromZap wraps an existing zap logger, e.g. zaptest.NewLogger in tests.
func NewLoggerFromZap(z *zap.Logger, service string) *ProductionLogger {
	return &ProductionLogger{sugar: z.Sugar().With("service", service)}
}

// ParseLevel maps a level name onto zap's levels. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "INFO", "":
		return zapcore.InfoLevel, nil
	case "WARN", "WARNING":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// With returns a child logger carrying extra fields.
func (p *ProductionLogger) With(keysAndValues ...interface{}) *ProductionLogger {
	return &ProductionLogger{sugar: p.sugar.With(keysAndValues...)}
}

// Named returns a child logger for a component.
func (p *ProductionLogger) Named(component string) *ProductionLogger {
	return &ProductionLogger{sugar: p.sugar.Named(component)}
}

func (p *ProductionLogger) Info(msg string, keysAndValues ...interface{}) {
	p.sugar.Infow(msg, keysAndValues...)
}

func (p *ProductionLogger) Error(msg string, keysAndValues ...interface{}) {
	p.sugar.Errorw(msg, keysAndValues...)
}

func (p *ProductionLogger) Debug(msg string, keysAndValues ...interface{}) {
	p.sugar.Debugw(msg, keysAndValues...)
}

func (p *ProductionLogger) Warn(msg string, keysAndValues ...interface{}) {
	p.sugar.Warnw(msg, keysAndValues...)
}

// Sync flushes buffered entries; call before exit.
func (p *ProductionLogger) Sync() error {
	return p.sugar.Sync()
}

// NoOpLogger is a logger that does nothing (for testing)
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, keysAndValues ...interface{})  {}
func (n *NoOpLogger) Error(msg string, keysAndValues ...interface{}) {}
func (n *NoOpLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (n *NoOpLogger) Warn(msg string, keysAndValues ...interface{})  {}

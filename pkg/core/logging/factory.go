// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     logging
// Description: Factory functions for creating loggers
// Created:     2026-10-12
// License:     MIT
// ============================================================================

package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below debug and is used for per-frame output
const LevelTrace = slog.Level(-8)

// LoggerConfig holds configuration for creating loggers
type LoggerConfig struct {
	// Service name, attached to every record as "service"
	ServiceName string

	// Log level (trace, debug, info, warn, error)
	Level string

	// Output format
	Format string // "json" or "text" (default: json)

	// Output defaults to stderr so stdout stays free for PCM piping
	Output io.Writer

	// Additional outputs (besides Output)
	AdditionalOutputs []io.Writer
}

// DefaultLoggerConfig returns a default configuration
func DefaultLoggerConfig(serviceName string) LoggerConfig {
	return LoggerConfig{
		ServiceName: serviceName,
		Level:       "info",
		Format:      "json",
	}
}

// Logger wraps slog.Logger and keeps the configuration it was built from
type Logger struct {
	*slog.Logger
	name string
	cfg  LoggerConfig
}

// NewLogger creates a new logger from cfg
func NewLogger(cfg LoggerConfig) *Logger {
	return build(cfg, ParseLevel(cfg.Level))
}

// New creates a logger with default configuration
func New(name string) *Logger {
	return NewLogger(DefaultLoggerConfig(name))
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	cfg := DefaultLoggerConfig("discard")
	cfg.Output = io.Discard
	return NewLogger(cfg)
}

// Name returns the service name of the logger
func (l *Logger) Name() string {
	return l.name
}

// WithLevel returns a new logger with the specified level
func (l *Logger) WithLevel(level Level) *Logger {
	return build(l.cfg, level.slogLevel())
}

// Named returns a child logger with an additional "component" attribute
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		name:   l.name,
		cfg:    l.cfg,
	}
}

// Trace logs below debug level
func (l *Logger) Trace(msg string, keysAndValues ...any) {
	l.Logger.Log(context.Background(), LevelTrace, msg, keysAndValues...)
}

func build(cfg LoggerConfig, level slog.Level) *Logger {
	var output io.Writer = os.Stderr
	if cfg.Output != nil {
		output = cfg.Output
	}
	if len(cfg.AdditionalOutputs) > 0 {
		writers := append([]io.Writer{output}, cfg.AdditionalOutputs...)
		output = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	logger := slog.New(handler)
	if cfg.ServiceName != "" {
		logger = logger.With("service", cfg.ServiceName)
	}

	return &Logger{
		Logger: logger,
		name:   cfg.ServiceName,
		cfg:    cfg,
	}
}

// ParseLevel converts a string level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

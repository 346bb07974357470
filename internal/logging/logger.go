// Package logging provides structured logging for migration operations.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Logger is the logging interface used throughout the migration pipeline.
type Logger interface {
	Trace(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)

	// Named returns a sub-logger for the given subsystem.
	Named(subsystem string) Logger

	// With returns a sub-logger that includes the given fields on every
	// message.
	With(fields map[string]any) Logger
}

// HCLogger wraps hclog for use in the migration pipeline.
type HCLogger struct {
	logger hclog.Logger
}

// New creates a new logger with the given name and level ("trace", "debug",
// "info", "warn", "error").
func New(name, level string) *HCLogger {
	return NewWithOutput(name, level, os.Stderr)
}

// NewWithOutput creates a new logger writing to the given output.
func NewWithOutput(name, level string, output io.Writer) *HCLogger {
	return &HCLogger{
		logger: hclog.New(&hclog.LoggerOptions{
			Name:   name,
			Level:  hclog.LevelFromString(level),
			Output: output,
		}),
	}
}

// Discard returns a logger that drops all output. Used in tests.
func Discard() *HCLogger {
	return &HCLogger{logger: hclog.NewNullLogger()}
}

func (l *HCLogger) Trace(msg string, fields map[string]any) {
	l.logger.Trace(msg, flatten(fields)...)
}

func (l *HCLogger) Debug(msg string, fields map[string]any) {
	l.logger.Debug(msg, flatten(fields)...)
}

func (l *HCLogger) Info(msg string, fields map[string]any) {
	l.logger.Info(msg, flatten(fields)...)
}

func (l *HCLogger) Warn(msg string, fields map[string]any) {
	l.logger.Warn(msg, flatten(fields)...)
}

func (l *HCLogger) Error(msg string, fields map[string]any) {
	l.logger.Error(msg, flatten(fields)...)
}

func (l *HCLogger) Named(subsystem string) Logger {
	return &HCLogger{logger: l.logger.Named(subsystem)}
}

func (l *HCLogger) With(fields map[string]any) Logger {
	return &HCLogger{logger: l.logger.With(flatten(fields)...)}
}

// flatten converts a fields map to hclog's alternating key/value form.
func flatten(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

// LogOperation logs an operation with timing.
func LogOperation(logger Logger, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	logger.Debug("Starting operation", fields)

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		logger.Error("Operation failed", fields)
	} else {
		logger.Debug("Operation completed successfully", fields)
	}

	return err
}

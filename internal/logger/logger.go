// Package logger provides structured logging for proxyhk using zap.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dbsmedya/proxyhk/internal/config"
)

// Logger wraps zap.SugaredLogger with the context fields proxyhk logs by.
type Logger struct {
	*zap.SugaredLogger
	base *zap.Logger
}

// New creates a Logger from configuration. Output is stdout, stderr or a
// file path; a file that cannot be opened is an error.
func New(cfg *config.LoggingConfig) (*Logger, error) {
	sink, toFile, err := openSink(cfg.Output)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(cfg.Format, !toFile), sink, parseLevel(cfg.Level))
	return wrap(zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))), nil
}

// NewFromCore wraps an existing zap core, e.g. an observer core in tests.
func NewFromCore(core zapcore.Core) *Logger {
	return wrap(zap.New(core))
}

// NewDefault creates an info level text Logger on stdout.
func NewDefault() *Logger {
	core := zapcore.NewCore(newEncoder("text", true), zapcore.Lock(os.Stdout), zapcore.InfoLevel)
	return wrap(zap.New(core, zap.AddCaller()))
}

func wrap(base *zap.Logger) *Logger {
	return &Logger{SugaredLogger: base.Sugar(), base: base}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// newEncoder returns a JSON encoder for "json" and a console encoder
// otherwise. Level colours are only used on a terminal stream.
func newEncoder(format string, colour bool) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.SecondsDurationEncoder

	if format == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if colour {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(ec)
}

func openSink(output string) (zapcore.WriteSyncer, bool, error) {
	switch output {
	case "stdout", "":
		return zapcore.Lock(os.Stdout), false, nil
	case "stderr":
		return zapcore.Lock(os.Stderr), false, nil
	}
	file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open log output %q: %w", output, err)
	}
	return zapcore.AddSync(file), true, nil
}

// WithCycle tags entries with a housekeeping cycle id.
func (l *Logger) WithCycle(cycleID string) *Logger {
	return l.with("cycle", cycleID)
}

// WithComponent tags entries with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return l.with("component", name)
}

// WithTable tags entries with a buffered table name.
func (l *Logger) WithTable(tableName string) *Logger {
	return l.with("table", tableName)
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(key, value), base: l.base}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.base.Sync()
}

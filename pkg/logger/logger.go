// Package logger builds the logrus loggers used by the gateway and the CLI
// and carries request correlation ids through contexts.
package logger

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/config"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// minMaskLength is the shortest secret that still gets a visible prefix.
const minMaskLength = 8

type correlationKey struct{}

// New builds a logrus logger. Unknown levels fall back to info, and an
// output that cannot be opened falls back to stdout with a warning.
func New(level, format, output string) *logrus.Logger {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(formatterFor(format))

	w, err := openOutput(output)
	if err != nil {
		logger.SetOutput(os.Stdout)
		logger.WithError(err).WithField("output", output).Warn("Log output unusable, writing to stdout")
		return logger
	}
	logger.SetOutput(w)
	return logger
}

// openOutput resolves stdout, stderr, discard or a file path. File output
// is mirrored to stdout so container logs stay complete.
func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "discard":
		return io.Discard, nil
	}

	path := filepath.Clean(output)
	if strings.Contains(path, "..") {
		return nil, errors.New("log file path must not contain '..'")
	}
	// #nosec G304 -- path is cleaned and checked for traversal above
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return io.MultiWriter(os.Stdout, f), nil
}

// NewWithConfig builds a logger from the logging section of the service
// configuration.
func NewWithConfig(cfg *config.LoggingConfig) *logrus.Logger {
	if cfg == nil {
		return New("info", "json", "stdout")
	}
	return New(cfg.Level, cfg.Format, cfg.Output)
}

// NewDiscard returns a logger that drops everything. Handy in tests.
func NewDiscard() *logrus.Logger {
	return New("panic", "text", "discard")
}

func formatterFor(format string) logrus.Formatter {
	if strings.EqualFold(format, "text") {
		return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: timestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	}
}

// SetCorrelationID stores the correlation ID for the request in ctx.
func SetCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation ID stored in ctx, if any.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID returns a log entry carrying the correlation ID from ctx.
func WithCorrelationID(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	entry := logrus.NewEntry(logger)
	if id := CorrelationID(ctx); id != "" {
		entry = entry.WithField("correlation_id", id)
	}
	return entry
}

// MaskToken returns a log-safe representation of a bearer token or session id.
func MaskToken(token string) string {
	if len(token) < minMaskLength {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

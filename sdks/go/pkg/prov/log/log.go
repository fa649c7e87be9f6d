// Package log carries a leveled logger through context.Context.
// Callers attach a Logger with WithLogger; library code retrieves it with
// GetLogger and logs nothing when none was attached.
// *logrus.Logger and *logrus.Entry satisfy Logger.
package log

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey int

const loggerKey contextKey = iota

// Discard logs nothing.
var Discard Logger = &discardLogger{}

// Logger is the subset of a leveled logger used across the module.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLogger returns the Logger stored in ctx, or Discard.
func GetLogger(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return Discard
}

// New builds a logrus logger writing to stderr. Unknown levels fall back to
// info; format "json" selects the JSON formatter, anything else text.
func New(level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

type discardLogger struct{}

func (dl *discardLogger) Debug(args ...interface{})                 {}
func (dl *discardLogger) Debugf(format string, args ...interface{}) {}
func (dl *discardLogger) Info(args ...interface{})                  {}
func (dl *discardLogger) Infof(format string, args ...interface{})  {}
func (dl *discardLogger) Warn(args ...interface{})                  {}
func (dl *discardLogger) Warnf(format string, args ...interface{})  {}
func (dl *discardLogger) Error(args ...interface{})                 {}
func (dl *discardLogger) Errorf(format string, args ...interface{}) {}

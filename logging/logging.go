// Package logging contains the leveled, structured logger used across the stereo DIC packages.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Level is a logging priority. Entries below a logger's level are dropped.
type Level = zapcore.Level

// Levels in use by the packages.
const (
	DEBUG = zapcore.DebugLevel
	INFO  = zapcore.InfoLevel
	WARN  = zapcore.WarnLevel
)

// Logger is the logging interface handed to calibration, stereovision and the CLI. Structured
// calls take alternating keys and values.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Infof(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" writing to the same appenders,
	// starting at the current level.
	Sublogger(subname string) Logger
	SetLevel(level Level)
	AddAppender(appender Appender)
	Sync() error
}

var globalLogger = NewLogger("stereodic")

// Global returns the process wide logger used when a component is built without one.
func Global() Logger {
	return globalLogger
}

// NewLogger returns a logger writing Info and above to stdout, timestamps in UTC.
func NewLogger(name string) Logger {
	return newImpl(name, INFO, true, NewStdoutAppender())
}

// NewBlankLogger returns a Debug level logger with no appenders, timestamps in UTC.
func NewBlankLogger(name string) Logger {
	return newImpl(name, DEBUG, true)
}

// NewTestLogger returns a Debug level logger that writes to the test's log.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also records every entry for assertions.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return newImpl("", DEBUG, false, NewTestAppender(tb), core), logs
}

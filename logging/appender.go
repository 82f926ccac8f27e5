package logging

import (
	"io"
	"os"
	"testing"

	"go.uber.org/zap/zapcore"
)

// Appender is an output for log entries. Any zapcore.Core satisfies it.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	Sync() error
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// ConsoleAppender encodes entries as tab separated console lines.
type ConsoleAppender struct {
	out     io.Writer
	encoder zapcore.Encoder
}

// NewConsoleAppender returns an appender writing console lines to out.
func NewConsoleAppender(out io.Writer) ConsoleAppender {
	return ConsoleAppender{out: out, encoder: zapcore.NewConsoleEncoder(consoleEncoderConfig())}
}

// NewStdoutAppender writes to stdout.
func NewStdoutAppender() ConsoleAppender {
	return NewConsoleAppender(os.Stdout)
}

// NewStderrAppender writes to stderr, leaving stdout to command output.
func NewStderrAppender() ConsoleAppender {
	return NewConsoleAppender(os.Stderr)
}

// Write encodes one entry.
func (a ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := a.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	_, err = a.out.Write(buf.Bytes())
	return err
}

// Sync is a no-op.
func (a ConsoleAppender) Sync() error {
	return nil
}

type testAppender struct {
	tb      testing.TB
	encoder zapcore.Encoder
}

// NewTestAppender returns an appender that logs through tb so lines show up under the test
// that produced them.
func NewTestAppender(tb testing.TB) Appender {
	cfg := consoleEncoderConfig()
	cfg.LineEnding = ""
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return &testAppender{tb: tb, encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (a *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	a.tb.Helper()
	buf, err := a.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	a.tb.Log(buf.String())
	return nil
}

func (a *testAppender) Sync() error {
	return nil
}

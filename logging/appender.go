package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the format used for timestamps by the plain text appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. A zapcore.Core satisfies it, so zap cores (for example
// the test observer) can be appended directly.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	Sync() error
}

// ConsoleAppender writes console encoded log lines to a writer.
type ConsoleAppender struct {
	mu      sync.Mutex
	encoder zapcore.Encoder
	out     io.Writer
}

// NewStdoutAppender creates a ConsoleAppender writing to stdout.
func NewStdoutAppender() *ConsoleAppender {
	return NewWriterAppender(os.Stdout)
}

// NewWriterAppender creates a ConsoleAppender writing to the given writer.
func NewWriterAppender(w io.Writer) *ConsoleAppender {
	return &ConsoleAppender{
		encoder: zapcore.NewConsoleEncoder(NewZapLoggerConfig().EncoderConfig),
		out:     w,
	}
}

// Write encodes the entry and writes it out.
func (appender *ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	appender.mu.Lock()
	defer appender.mu.Unlock()
	_, err = appender.out.Write(buf.Bytes())
	return err
}

// Sync is a no-op unless the writer is a file.
func (appender *ConsoleAppender) Sync() error {
	if f, ok := appender.out.(*os.File); ok {
		//nolint:errcheck
		f.Sync()
	}
	return nil
}

type testAppender struct {
	tb interface {
		Helper()
		Log(args ...interface{})
	}
}

// NewTestAppender returns a logger appender that logs to the underlying `testing.TB`
// object, so log lines are associated with the test that produced them even when tests
// run in parallel.
func NewTestAppender(tb interface {
	Helper()
	Log(args ...interface{})
},
) Appender {
	return &testAppender{tb}
}

// Write outputs the log entry to the underlying test object `Log` method.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	const maxLength = 10
	toPrint := make([]string, 0, maxLength)
	toPrint = append(toPrint, entry.Time.Format(DefaultTimeFormatStr))

	toPrint = append(toPrint, strings.ToUpper(entry.Level.String()))
	toPrint = append(toPrint, entry.LoggerName)
	if entry.Caller.Defined {
		toPrint = append(toPrint, fmt.Sprintf("%s:%d", entry.Caller.File, entry.Caller.Line))
	}
	toPrint = append(toPrint, entry.Message)
	if len(fields) == 0 {
		tapp.tb.Log(strings.Join(toPrint, "\t"))
		return nil
	}

	// Use zap's json encoder which will encode our slice of fields in-order.
	jsonEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := jsonEncoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		tapp.tb.Log(strings.Join(toPrint, "\t"))
		return err
	}
	toPrint = append(toPrint, string(buf.Bytes()))
	tapp.tb.Log(strings.Join(toPrint, "\t"))
	return nil
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}

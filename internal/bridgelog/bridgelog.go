// Package bridgelog provides the bridge's single process-wide, leveled,
// component-tagged log sink.
package bridgelog

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

const timestampPattern = "%Y-%m-%d %H:%M:%S"

// Logger is a leveled sink tagged with a component name. The zero value is
// not usable; construct with New.
type Logger struct {
	base *log.Logger
}

// New returns a Logger writing to w, tagged with component. Timestamps are
// rendered once per call using the same strftime pattern the rest of the
// bridge's ancestry uses for on-disk timestamps, rather than charmbracelet/
// log's own Go-layout formatter.
func New(w io.Writer, component string) *Logger {
	base := log.NewWithOptions(w, log.Options{
		ReportTimestamp: false,
		Prefix:          component,
	})
	return &Logger{base: base}
}

// Default returns a Logger writing to stderr at Info level.
func Default(component string) *Logger {
	return New(os.Stderr, component)
}

func (l *Logger) fields(kv []interface{}) []interface{} {
	ts, err := strftime.Format(timestampPattern, time.Now())
	if err != nil {
		ts = time.Now().UTC().String()
	}
	return append([]interface{}{"ts", ts}, kv...)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, kv ...interface{}) {
	l.base.Debug(msg, l.fields(kv)...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, kv ...interface{}) {
	l.base.Info(msg, l.fields(kv)...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.base.Warn(msg, l.fields(kv)...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, kv ...interface{}) {
	l.base.Error(msg, l.fields(kv)...)
}

// With returns a Logger that always carries the given key-value pairs in
// addition to its own.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{base: l.base.With(kv...)}
}

// SetDebug raises or lowers the logger's level between Debug and Info.
func (l *Logger) SetDebug(enabled bool) {
	if enabled {
		l.base.SetLevel(log.DebugLevel)
		return
	}
	l.base.SetLevel(log.InfoLevel)
}

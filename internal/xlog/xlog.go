// Package xlog is this driver's structured logging wrapper around
// charmbracelet/log, giving every component the same field vocabulary
// (device, cycle, frames, elapsed) instead of ad-hoc printf calls.
package xlog

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// Logger is a thin facade over *log.Logger scoped to one device, so
// call sites don't repeat the "device" field on every line.
type Logger struct {
	base *log.Logger
}

// New returns a Logger writing to w (os.Stderr if nil), tagged with the
// given device name on every entry.
func New(w io.Writer, device string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	var base = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.StampMilli,
	})
	return &Logger{base: base.With("device", device)}
}

// SetLevel adjusts verbosity; accepts the same names as charmbracelet/log
// ("debug", "info", "warn", "error").
func (l *Logger) SetLevel(level string) {
	var parsed, err = log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	l.base.SetLevel(parsed)
}

// Debug, Info, Warn, and Error log msg with the alternating key/value
// pairs in kv, plus the device field and any fields added by WithCycle;
// msg is not a format string.
func (l *Logger) Debug(msg string, kv ...any) { l.base.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.base.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.base.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.base.Error(msg, kv...) }

// WithCycle scopes subsequent log lines to one IOCycle iteration,
// adding the cycle index and frame count every xrun and recovery
// report carries.
func (l *Logger) WithCycle(cycle int, frames int) *Logger {
	return &Logger{base: l.base.With("cycle", cycle, "frames", frames)}
}

// elapsedFormat is the strftime layout used to render recovery-report
// timestamps.
const elapsedFormat = "%Y-%m-%d %H:%M:%S"

// FormatElapsed renders since as an absolute timestamp using strftime,
// for inclusion in an xrun recovery log line alongside the numeric
// elapsed-frames count.
func FormatElapsed(since time.Time) string {
	var formatted, err = strftime.Format(elapsedFormat, since)
	if err != nil {
		return since.Format(time.RFC3339)
	}
	return formatted
}

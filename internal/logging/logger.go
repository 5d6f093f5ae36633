// Package logging provides depot's structured logger, a thin layer over
// zerolog that tags every line with a dotted subsystem path.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Levels lists the accepted level names, most verbose first.
var Levels = []string{"trace", "debug", "info", "warn", "error", "fatal", "silent"}

var levels = map[string]zerolog.Level{
	"trace":  zerolog.TraceLevel,
	"debug":  zerolog.DebugLevel,
	"info":   zerolog.InfoLevel,
	"warn":   zerolog.WarnLevel,
	"error":  zerolog.ErrorLevel,
	"fatal":  zerolog.FatalLevel,
	"silent": zerolog.Disabled,
}

// ParseLevel maps a level name to its zerolog level. Unknown names report
// false and fall back to info.
func ParseLevel(s string) (zerolog.Level, bool) {
	lvl, ok := levels[s]
	if !ok {
		return zerolog.InfoLevel, false
	}
	return lvl, true
}

// Logger is a zerolog logger bound to a subsystem.
type Logger struct {
	zl        zerolog.Logger
	subsystem string
}

// New creates a root logger writing JSON lines to w at level. A nil w
// writes pretty console output to stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	lvl, _ := ParseLevel(level)
	return &Logger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// NewWithStyle creates a root logger on out using a console style:
// "json" writes raw JSON lines, "compact" uncolored console output, and
// anything else colored console output.
func NewWithStyle(out io.Writer, level, style string) *Logger {
	if out == nil {
		out = os.Stderr
	}
	if style == "json" {
		return New(out, level)
	}
	return New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: style == "compact"}, level)
}

// Sub returns a child logger for a nested subsystem. Names accumulate:
// Sub("gateway").Sub("clients") logs subsystem=gateway.clients.
func (l *Logger) Sub(subsystem string) *Logger {
	path := subsystem
	if l.subsystem != "" {
		path = l.subsystem + "." + subsystem
	}
	return &Logger{zl: l.zl.With().Str("subsystem", path).Logger(), subsystem: path}
}

// Subsystem returns the dotted subsystem path, empty for a root logger.
func (l *Logger) Subsystem() string { return l.subsystem }

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger(), subsystem: l.subsystem}
}

// Enabled reports whether events at level would be written.
func (l *Logger) Enabled(level string) bool {
	lvl, ok := ParseLevel(strings.ToLower(level))
	return ok && lvl != zerolog.Disabled && lvl >= l.zl.GetLevel()
}

func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Fatal logs at fatal level and exits.
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

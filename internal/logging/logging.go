// Package logging builds the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New returns a logger writing to w at the given level. format "console"
// selects the human-readable writer, anything else emits JSON lines.
func New(w io.Writer, level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	zerolog.ErrorFieldName = "err"

	out := w
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Printer adapts a zerolog logger to the Printf/Println style used by gorm's
// logger.Writer and tgbotapi.BotLogger.
type Printer struct {
	Logger zerolog.Logger
	Level  zerolog.Level
}

func (p Printer) Printf(format string, args ...interface{}) {
	p.Logger.WithLevel(p.Level).Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p Printer) Println(v ...interface{}) {
	p.Logger.WithLevel(p.Level).Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

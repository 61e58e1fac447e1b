// Package util holds small process-wide helpers shared by the binaries.
package util

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds a timestamped zerolog logger writing to stdout.
// format "console" switches to the human readable writer; anything else emits JSON.
func NewLogger(level, format string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, level, format)
}

// NewLoggerTo is NewLogger with an explicit destination.
func NewLoggerTo(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: w != io.Writer(os.Stdout)}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

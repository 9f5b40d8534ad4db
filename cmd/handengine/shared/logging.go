// Package shared holds the process plumbing used by every handengine command.
package shared

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogOptions selects the output format and level of a command's logger.
type LogOptions struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// Debug forces the debug level regardless of Level.
	Debug bool
	// JSON writes structured lines instead of console output.
	JSON bool
	// Out defaults to stderr.
	Out io.Writer
}

// NewLogger builds the root logger for a command.
func NewLogger(opts LogOptions) (zerolog.Logger, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.InfoLevel
	switch {
	case opts.Debug:
		level = zerolog.DebugLevel
	case opts.Level != "":
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	if opts.JSON {
		zerolog.TimeFieldFormat = time.RFC3339Nano
	} else {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// DebugLogger is the console logger used by the offline commands.
func DebugLogger() zerolog.Logger {
	logger, _ := NewLogger(LogOptions{Debug: true})
	return logger
}

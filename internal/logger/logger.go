// Package logger builds the zerolog loggers handed to the pipeline components.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// NewZerolog returns a JSON logger writing to writer at level
func NewZerolog(writer io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// NewConsoleLogger returns a human readable logger writing to writer
func NewConsoleLogger(writer io.Writer, level zerolog.Level) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	return NewZerolog(consoleWriter, level)
}

// ParseLevel maps a level name onto a zerolog level. An empty name is info.
func ParseLevel(name string) (zerolog.Level, error) {
	if strings.TrimSpace(name) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.NoLevel, errors.WithHint(
			errors.Wrapf(err, "unknown log level %q", name),
			"use one of trace, debug, info, warn, error or disabled")
	}
	return level, nil
}

// New builds the logger for the command line tool. Diagnostics go to stderr
// so stdout stays free for results.
func New(level string, json bool) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if json {
		return NewZerolog(os.Stderr, lvl), nil
	}
	return NewConsoleLogger(os.Stderr, lvl), nil
}

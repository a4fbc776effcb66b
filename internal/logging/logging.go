// Package logging builds the application's zerolog logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// Options selects the log level and sinks.
type Options struct {
	// Level is one of trace, debug, info, warn, error (case-insensitive).
	Level string
	// File, when set, receives an uncoloured copy of the console output.
	File string
	// GraylogAddr, when set, is the host:port of a GELF UDP input.
	GraylogAddr string
	// Console overrides the console output; defaults to stderr.
	Console io.Writer
	// NoColor disables ANSI colours on the console.
	NoColor bool
}

// ParseLevel maps a level name to a zerolog level. Unknown names map to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Sinks holds the writers opened for a logger so they can be closed on exit.
type Sinks struct {
	closers []io.Closer
}

// Close closes every opened sink.
func (s *Sinks) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// New creates a logger writing to the console and the optional file and
// Graylog sinks.
func New(opts Options) (zerolog.Logger, *Sinks, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	sinks := &Sinks{}
	writers := []io.Writer{
		zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		},
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		sinks.closers = append(sinks.closers, f)
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        f,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}

	if opts.GraylogAddr != "" {
		gw, err := gelf.NewWriter(opts.GraylogAddr)
		if err != nil {
			sinks.Close()
			return zerolog.Nop(), nil, fmt.Errorf("connect graylog: %w", err)
		}
		gw.Facility = "fitcheck"
		sinks.closers = append(sinks.closers, gw)
		writers = append(writers, gw)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(opts.Level)).
		With().Timestamp().Logger()

	return logger, sinks, nil
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

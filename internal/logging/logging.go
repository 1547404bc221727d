// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls where and how much is logged
type Options struct {
	Level string // debug, info, warn, error; defaults to info
	File  string // optional log file, written as JSON in addition to the console
	Out   io.Writer
}

// Setup replaces the global logger. Console output goes to stderr unless Out is set, because stdout may be
// carrying the message protocol. The returned closer releases the log file, if any.
func Setup(opts Options) (io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level '%s': %w", opts.Level, err)
		}
		level = l
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	console := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		FormatCaller: func(i interface{}) string {
			s, _ := i.(string)
			return filepath.Base(s)
		},
	}

	var (
		writer io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

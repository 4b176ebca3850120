// Package logging builds the zerolog logger used across the application.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger in production and a human-readable console logger otherwise.
func New(production, debug bool) zerolog.Logger {
	return NewWithWriter(os.Stdout, production, debug)
}

func NewWithWriter(w io.Writer, production, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	if !production {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

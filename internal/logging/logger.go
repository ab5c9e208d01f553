package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds the process logger. Components receive it by value and add their own fields.
func New(level, env string) zerolog.Logger {
	return NewWithWriter(os.Stderr, level, env)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, env string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if env == "development" {
		w = zerolog.ConsoleWriter{Out: w}
	}

	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

package internal

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns the JSON logger shared by every luce component. Logs go
// to stderr so commands that print results on stdout stay pipeable.
func NewLogger(levelStr string) zerolog.Logger {
	return newLogger(os.Stderr, levelStr)
}

func newLogger(w io.Writer, levelStr string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).With().
		Timestamp().
		Str("service", "luce").
		Logger().
		Level(level)
}

// RunLogger tags log lines of a single pipeline run.
func RunLogger(log zerolog.Logger, run RunContext) zerolog.Logger {
	return log.With().
		Str("run_id", run.ID).
		Str("flow", run.Flow).
		Str("source_ref", run.SourceRef).
		Logger()
}

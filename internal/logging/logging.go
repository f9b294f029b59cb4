// Package logging builds the zerolog logger shared across the manager
// and every session, and provides panic-recovery helpers for the
// supervised background goroutines.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Options configure the logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, pretty
}

// New builds a structured logger per Options.
func New(opts Options) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if opts.Format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).With().
		Timestamp().
		Caller().
		Str("service", "sessiond").
		Logger()
}

// RecoverPanic recovers a goroutine panic, logs it with a stack trace,
// and lets the goroutine return normally instead of crashing the
// process. Every supervised background task and per-session dispatch
// goroutine defers this first.
func RecoverPanic(logger zerolog.Logger, goroutine string, fields map[string]any) {
	if r := recover(); r != nil {
		event := logger.Error().
			Str("goroutine", goroutine).
			Interface("panic", r).
			Str("stack", string(debug.Stack()))
		for k, v := range fields {
			event = event.Interface(k, v)
		}
		event.Msg("goroutine panic recovered")
	}
}

// LogError logs an error with contextual fields.
func LogError(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	event := logger.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

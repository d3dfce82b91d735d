// Package logging sets up structured, leveled logging with zerolog and
// threads a zerolog.Logger through context.Context, per the ambient
// stack described in SPEC_FULL.md §2.1.
package logging

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey struct{}

// New builds the process-wide logger, writing to stderr so stdout stays
// clean for task/script output. verbose lowers the level to debug.
func New(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// WithInvocation tags logger with the invocation_id field correlating all
// log lines from one top-level CLI invocation (SPEC_FULL.md §3.1).
func WithInvocation(logger zerolog.Logger, id uuid.UUID) zerolog.Logger {
	return logger.With().Str("invocation_id", id.String()).Logger()
}

// Into stores logger on ctx.
func Into(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From retrieves the logger stored on ctx, falling back to a disabled
// logger if none was set (mirrors zerolog's own nop-logger convention so
// callers never need a nil check).
func From(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return zerolog.Nop()
}

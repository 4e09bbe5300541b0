package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Options configures New. The zero value logs JSON at info level to stdout.
type Options struct {
	// Env picks the default level: debug in local and dev, info elsewhere.
	Env string
	// Level overrides the env default when set (debug, info, warn, error).
	Level string
	// Service is attached to every record so API and worker logs can be told apart.
	Service string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// New returns the JSON logger used by every process of the platform.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: levelFor(opts.Env, opts.Level)})
	l := slog.New(h)
	if opts.Service != "" {
		l = l.With("service", opts.Service)
	}
	return l
}

func levelFor(env, override string) slog.Level {
	var lvl slog.Level
	if override != "" && lvl.UnmarshalText([]byte(override)) == nil {
		return lvl
	}
	if env == "local" || env == "dev" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

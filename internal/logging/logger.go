package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

// Options controls how New builds the process logger.
type Options struct {
	Level  slog.Level
	Format string
	// ReportErrors forwards error-level records to Sentry in addition to the
	// primary handler.
	ReportErrors bool
}

// New returns a logger writing to w. Format "json" selects the structured
// handler; anything else gets the colored text handler.
func New(w io.Writer, opts Options) *slog.Logger {
	var primary slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		primary = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	default:
		primary = tint.NewHandler(w, &tint.Options{Level: opts.Level})
	}

	if !opts.ReportErrors {
		return slog.New(primary)
	}
	return slog.New(MultiHandler(primary, NewSentryHandler(slog.LevelError)))
}

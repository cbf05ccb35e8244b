package logging

import (
	"context"
	"errors"
	"log/slog"
)

// MultiHandler fans records out to every non-nil handler. Each handler keeps
// its own level, so the console can log at debug while error reporting only
// sees errors.
func MultiHandler(handlers ...slog.Handler) slog.Handler {
	fan := fanoutHandler{handlers: make([]slog.Handler, 0, len(handlers))}
	for _, handler := range handlers {
		if handler != nil {
			fan.handlers = append(fan.handlers, handler)
		}
	}
	if len(fan.handlers) == 1 {
		return fan.handlers[0]
	}
	if len(fan.handlers) == 0 {
		return slog.DiscardHandler
	}
	return fan
}

type fanoutHandler struct {
	handlers []slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes each handler its own copy of the record; handlers may retain
// or extend the attrs they receive.
func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanoutHandler) derive(apply func(slog.Handler) slog.Handler) fanoutHandler {
	next := fanoutHandler{handlers: make([]slog.Handler, len(f.handlers))}
	for i, handler := range f.handlers {
		next.handlers[i] = apply(handler)
	}
	return next
}

package logging

import (
	"context"
	"log/slog"

	"github.com/getsentry/sentry-go"
)

// SentryHandler reports records at or above a threshold as Sentry events.
// It never fails the log call; delivery is best effort.
type SentryHandler struct {
	threshold slog.Level
	attrs     []slog.Attr
	group     string
}

func NewSentryHandler(threshold slog.Level) *SentryHandler {
	return &SentryHandler{threshold: threshold}
}

func (h *SentryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.threshold
}

func (h *SentryHandler) Handle(ctx context.Context, record slog.Record) error {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub == nil || hub.Client() == nil {
		return nil
	}

	fields := sentry.Context{}
	for _, attr := range h.attrs {
		fields[attr.Key] = attr.Value.String()
	}
	var reported error
	record.Attrs(func(attr slog.Attr) bool {
		if err, ok := attr.Value.Any().(error); ok && attr.Key == "error" {
			reported = err
		}
		fields[h.key(attr.Key)] = attr.Value.String()
		return true
	})

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentryLevel(record.Level))
		scope.SetContext("log", fields)
		scope.SetTag("logger.message", record.Message)
		if reported != nil {
			hub.CaptureException(reported)
			return
		}
		hub.CaptureMessage(record.Message)
	})
	return nil
}

func (h *SentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, attr := range attrs {
		attr.Key = h.key(attr.Key)
		next.attrs = append(next.attrs, attr)
	}
	return &next
}

func (h *SentryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.key(name)
	return &next
}

func (h *SentryHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func sentryLevel(level slog.Level) sentry.Level {
	switch {
	case level >= slog.LevelError:
		return sentry.LevelError
	case level >= slog.LevelWarn:
		return sentry.LevelWarning
	case level >= slog.LevelInfo:
		return sentry.LevelInfo
	default:
		return sentry.LevelDebug
	}
}

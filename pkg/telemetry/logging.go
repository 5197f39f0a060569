// Package telemetry wires structured logging (Cloud Logging-compatible
// JSON plus a component prefix) and Sentry exception capture, chained
// the way the teacher repo layers its own handlers.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// HandlerOptions returns slog.HandlerOptions with Cloud Logging's
// expected field names (message/severity) in place of slog's defaults.
func HandlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: a.Value}
			}
			if a.Key == slog.LevelKey {
				return slog.Attr{Key: "severity", Value: a.Value}
			}
			return a
		},
	}
}

// ComponentHandler prepends "[component]" to a record's message, driven
// by a "component" attribute set via .With("component", name).
type ComponentHandler struct {
	slog.Handler
	component string
}

func (h *ComponentHandler) WithGroup(name string) slog.Handler {
	return &ComponentHandler{Handler: h.Handler.WithGroup(name), component: h.component}
}

func (h *ComponentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newComp := h.component
	for _, a := range attrs {
		if a.Key == "component" {
			newComp = a.Value.String()
		}
	}
	return &ComponentHandler{Handler: h.Handler.WithAttrs(attrs), component: newComp}
}

func (h *ComponentHandler) Handle(ctx context.Context, r slog.Record) error {
	comp := h.component
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			comp = a.Value.String()
			return false
		}
		return true
	})

	if comp != "" {
		newRecord := slog.NewRecord(r.Time, r.Level, fmt.Sprintf("[%s] %s", comp, r.Message), r.PC)
		r.Attrs(func(a slog.Attr) bool {
			newRecord.AddAttrs(a)
			return true
		})
		r = newRecord
	}
	return h.Handler.Handle(ctx, r)
}

// NewLogger builds the JSONHandler -> ComponentHandler -> SentryHandler
// chain, scoped with a "service" attribute. LOG_LEVEL selects the level
// (debug/info/warn/error, default info).
func NewLogger(serviceName string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, HandlerOptions(level))
	compHandler := &ComponentHandler{Handler: jsonHandler}
	sentryHandler := NewSentryHandler(compHandler)
	return slog.New(sentryHandler).With("service", serviceName)
}

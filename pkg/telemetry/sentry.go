package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig mirrors the fields sentry.ClientOptions exposes that this
// service actually sets.
type SentryConfig struct {
	DSN                string
	Environment        string
	Release            string
	ServerName         string
	TracesSampleRate   float64
	ProfilesSampleRate float64
}

// SentryConfigFromEnv builds a SentryConfig from SENTRY_DSN,
// GOOGLE_CLOUD_PROJECT, SENTRY_RELEASE/K_REVISION, and K_SERVICE,
// matching the teacher's bootstrap wiring.
func SentryConfigFromEnv() SentryConfig {
	environment := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if environment == "" {
		environment = "trailtime-dev"
	}
	release := os.Getenv("SENTRY_RELEASE")
	if release == "" {
		release = os.Getenv("K_REVISION")
	}
	if release == "" {
		release = "unknown"
	}

	tracesSampleRate := 0.1
	if environment == "trailtime-dev" {
		tracesSampleRate = 1.0
	}

	return SentryConfig{
		DSN:                os.Getenv("SENTRY_DSN"),
		Environment:        environment,
		Release:            release,
		ServerName:         os.Getenv("K_SERVICE"),
		TracesSampleRate:   tracesSampleRate,
		ProfilesSampleRate: tracesSampleRate,
	}
}

// InitSentry initializes Sentry, stripping Authorization/Cookie headers
// before any event is sent. A blank DSN disables error tracking rather
// than failing startup — Sentry is optional infrastructure.
func InitSentry(cfg SentryConfig, logger *slog.Logger) error {
	if cfg.DSN == "" {
		if logger != nil {
			logger.Warn("sentry DSN not configured, error tracking disabled")
		}
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:                cfg.DSN,
		Environment:        cfg.Environment,
		Release:            cfg.Release,
		ServerName:         cfg.ServerName,
		TracesSampleRate:   cfg.TracesSampleRate,
		ProfilesSampleRate: cfg.ProfilesSampleRate,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Request != nil && event.Request.Headers != nil {
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("telemetry: sentry init: %w", err)
	}
	if logger != nil {
		logger.Info("sentry initialized", "environment", cfg.Environment, "release", cfg.Release)
	}
	return nil
}

// CaptureException reports err to Sentry with the given context fields.
func CaptureException(err error, context map[string]interface{}) {
	if err == nil {
		return
	}
	if context != nil {
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			for key, value := range context {
				scope.SetContext(key, sentry.Context(map[string]interface{}{"value": value}))
			}
		})
	}
	sentry.CaptureException(err)
}

// Flush waits for buffered Sentry events to be sent, for use before
// process termination.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// SentryHandler wraps a slog.Handler, forwarding Error-level records to
// Sentry as either a captured exception (if an "error" attribute holds
// an error value) or a captured message.
type SentryHandler struct {
	slog.Handler
}

func NewSentryHandler(h slog.Handler) *SentryHandler {
	return &SentryHandler{Handler: h}
}

func (h *SentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		attrs := make(map[string]interface{})
		r.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value.Any()
			return true
		})
		if errVal, ok := attrs["error"]; ok {
			if err, isErr := errVal.(error); isErr {
				CaptureException(err, attrs)
			} else {
				sentry.CaptureMessage(fmt.Sprintf("%s: %v", r.Message, errVal))
			}
		} else {
			sentry.CaptureMessage(r.Message)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *SentryHandler) WithGroup(name string) slog.Handler {
	return &SentryHandler{Handler: h.Handler.WithGroup(name)}
}

func (h *SentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SentryHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *SentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.Handler.Enabled(ctx, level)
}

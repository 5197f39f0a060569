// Package notify implements the NotificationBus: it stores one
// notification per user-facing event and best-effort pushes it out via
// Telegram, mirroring the teacher's FCM adapter shape but wired to the
// telegram_bot_token transport this spec actually uses (spec §4.9,
// supplemented from original_source/backend/app/shared/telegram.py).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Kind enumerates the notification event types the bus understands.
type Kind string

const (
	KindSyncProgress      Kind = "sync_progress"
	KindSyncComplete      Kind = "sync_complete"
	KindProfileUpdated    Kind = "profile_updated"
	KindProfileIncomplete Kind = "profile_incomplete"
	KindProfileComplete   Kind = "profile_complete"
	KindStravaConnected   Kind = "strava_connected"
)

// Notification is one stored, user-facing event.
type Notification struct {
	ID        string
	UserID    string
	Kind      Kind
	Title     string
	Body      string
	Data      map[string]string
	CreatedAt time.Time
	Read      bool
}

// Store is the minimal persistence surface the bus needs.
type Store interface {
	InsertNotification(ctx context.Context, n Notification) error
}

// PushAdapter delivers a rendered notification to an external channel.
// Failures are logged and swallowed by the bus — push is best-effort,
// the stored Notification is the durable record (spec §4.9).
type PushAdapter interface {
	Send(ctx context.Context, n Notification, channelID string) error
}

// ChannelResolver maps a user to their external push channel (e.g. a
// Telegram chat id). Returns ok=false when the user has no channel
// linked, in which case the bus stores the notification but skips push.
type ChannelResolver interface {
	ChannelFor(ctx context.Context, userID string) (channelID string, ok bool)
}

// formatter renders a Kind+Data pair into a human-readable title/body.
type formatter func(n Notification) (title, body string)

var formatters = map[Kind]formatter{
	KindSyncProgress: func(n Notification) (string, string) {
		return "Sync in progress", fmt.Sprintf("Processed %s of %s activities so far.", n.Data["processed"], n.Data["total"])
	},
	KindSyncComplete: func(n Notification) (string, string) {
		return "Sync complete", fmt.Sprintf("Synced %s new activities.", n.Data["new_activities"])
	},
	KindProfileUpdated: func(n Notification) (string, string) {
		return "Pace profile updated", "Your personalised pace predictions just got sharper."
	},
	KindProfileIncomplete: func(n Notification) (string, string) {
		return "Pace profile incomplete", "Sync a few more activities to unlock personalised predictions."
	},
	KindProfileComplete: func(n Notification) (string, string) {
		return "Pace profile ready", "Your personalised pace profile is ready to use."
	},
	KindStravaConnected: func(n Notification) (string, string) {
		return "Strava connected", "Your Strava account is linked. Starting your first sync."
	},
}

// Bus implements create_and_send: it persists the notification, renders
// it via the per-Kind formatter table, and best-effort pushes it.
type Bus struct {
	store    Store
	resolver ChannelResolver
	adapter  PushAdapter
	logger   *slog.Logger
}

// New builds a Bus. logger defaults to slog.Default() when nil.
func New(store Store, resolver ChannelResolver, adapter PushAdapter, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{store: store, resolver: resolver, adapter: adapter, logger: logger}
}

// CreateAndSend stores n (after rendering title/body from its Kind and
// Data if not already set) and attempts a best-effort push. Push
// failures are logged, never returned, so callers never block sync
// progress on notification delivery (spec §4.9 invariant).
func (b *Bus) CreateAndSend(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Title == "" && n.Body == "" {
		if f, ok := formatters[n.Kind]; ok {
			n.Title, n.Body = f(n)
		}
	}

	if err := b.store.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("notify: persist notification: %w", err)
	}

	channelID, ok := b.resolver.ChannelFor(ctx, n.UserID)
	if !ok {
		b.logger.Debug("no push channel linked, skipping push", "user_id", n.UserID, "kind", n.Kind)
		return nil
	}

	if err := b.adapter.Send(ctx, n, channelID); err != nil {
		b.logger.Warn("push delivery failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
	}
	return nil
}

// telegramAPIBase is the Telegram Bot API host, overridable in tests.
const telegramAPIBase = "https://api.telegram.org"

// TelegramAdapter pushes notifications through the Telegram Bot API's
// sendMessage endpoint.
type TelegramAdapter struct {
	botToken string
	apiBase  string
	client   *http.Client
}

// NewTelegramAdapter builds an adapter bound to telegram_bot_token. The
// HTTP client is capped at 10s, matching the teacher's bounded
// best-effort external calls.
func NewTelegramAdapter(botToken string) *TelegramAdapter {
	return &TelegramAdapter{botToken: botToken, apiBase: telegramAPIBase, client: &http.Client{Timeout: 10 * time.Second}}
}

func (a *TelegramAdapter) Send(ctx context.Context, n Notification, channelID string) error {
	base := a.apiBase
	if base == "" {
		base = telegramAPIBase
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, a.botToken)
	payload := map[string]string{
		"chat_id": channelID,
		"text":    fmt.Sprintf("%s\n\n%s", n.Title, n.Body),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram: sendMessage returned status %d", resp.StatusCode)
	}
	return nil
}

// Package store defines the persistence interfaces the sync pipeline,
// profile builder and notification bus depend on, plus a Firestore-backed
// implementation and an in-memory fake for tests (spec §3, §4.8).
package store

import (
	"context"
	"time"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/notify"
	"github.com/trailtime/core/pkg/oauth"
	"github.com/trailtime/core/pkg/profile"
)

// UserRecord is the minimal per-user account row the sync pipeline and
// notification bus consult: whether the provider OAuth connection is
// live, and which external channel (Telegram chat) to push to.
type UserRecord struct {
	UserID            string
	ProviderConnected bool
	TelegramChatID    string
}

// UserStore owns the per-user account row.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*UserRecord, error)
	UpsertUser(ctx context.Context, u UserRecord) error
}

// ActivityQuery narrows a QueryActivities call: an optional type filter,
// plus offset/limit pagination. Results are always ordered by start
// time, newest first (spec §4.8).
type ActivityQuery struct {
	Types  []activity.Type
	Offset int
	Limit  int
}

// ActivityStore owns the per-user activity and split documents.
// Activities are append-only; splits become immutable once the parent
// activity's splits_synced flag is set (spec §3 lifecycle).
type ActivityStore interface {
	FindActivity(ctx context.Context, userID string, providerActivityID int64) (*activity.Activity, error)
	ListActivities(ctx context.Context, userID string) ([]activity.Activity, error)
	QueryActivities(ctx context.Context, userID string, q ActivityQuery) ([]activity.Activity, error)
	InsertActivityIfAbsent(ctx context.Context, a activity.Activity) (inserted bool, err error)
	ListSplits(ctx context.Context, userID string, providerActivityID int64) ([]activity.Split, error)
	SetSplits(ctx context.Context, userID string, providerActivityID int64, splits []activity.Split) error
	DeleteSplits(ctx context.Context, userID string, providerActivityID int64) error
}

// SyncCursor tracks the incremental-sync watermark and the
// recalculation-checkpoint state for one user (spec §3, §4.10). The
// InProgress flag doubles as the per-user sync lock; it is held for the
// duration of one pass and released on both success and failure.
type SyncCursor struct {
	UserID                   string
	OldestSyncedAt           time.Time
	NewestSyncedAt           time.Time
	TotalActivitiesSynced    int
	ActivitiesWithSplits     int
	LastError                string
	LastSyncedAt             time.Time
	InProgress               bool
	InProgressStartedAt      time.Time
	InitialSyncComplete      bool
	LastRecalcCheckpoint     int
	NewActivitiesSinceRecalc int
	FirstBatchNotified       bool
}

// CursorStore owns per-user sync cursors.
type CursorStore interface {
	GetOrCreateCursor(ctx context.Context, userID string) (*SyncCursor, error)
	SaveCursor(ctx context.Context, cursor *SyncCursor) error
	ListStaleCursors(ctx context.Context, olderThan time.Time) ([]SyncCursor, error)
	ListStuckInProgress(ctx context.Context, olderThan time.Time) ([]SyncCursor, error)
}

// ProfileStore owns the per-user HikingProfile/RunProfile documents.
type ProfileStore interface {
	GetHikingProfile(ctx context.Context, userID string) (*profile.HikingProfile, error)
	UpsertHikingProfile(ctx context.Context, p profile.HikingProfile) error
	GetRunProfile(ctx context.Context, userID string) (*profile.RunProfile, error)
	UpsertRunProfile(ctx context.Context, p profile.RunProfile) error
}

// TokenStore owns the per-user OAuth token documents.
type TokenStore interface {
	GetToken(ctx context.Context, userID string) (*oauth.StoredToken, error)
	UpsertToken(ctx context.Context, userID string, tok oauth.StoredToken) error
	DeleteToken(ctx context.Context, userID string) error
}

// NotificationStore owns the per-user notification feed. Listing is
// newest-first with an optional unread-only filter; marking read is a
// bulk operation (spec §4.8).
type NotificationStore interface {
	InsertNotification(ctx context.Context, n notify.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notify.Notification, error)
	MarkRead(ctx context.Context, userID string, notificationIDs []string) error
}

// Store aggregates every sub-store the sync pipeline and profile builder
// need, mirroring the teacher's bootstrap.Service's single-client-bundle
// pattern.
type Store interface {
	UserStore
	ActivityStore
	CursorStore
	ProfileStore
	TokenStore
	NotificationStore
}

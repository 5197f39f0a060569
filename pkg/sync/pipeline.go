// Package sync implements the SyncPipeline: the per-user activity sync
// state machine, its incremental-recalculation checkpoints, and the
// bounded Scheduler that drives it across the user base (spec §4.10).
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/notify"
	"github.com/trailtime/core/pkg/profile"
	"github.com/trailtime/core/pkg/store"
)

// State is the SyncPipeline's per-user lifecycle state.
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StateError   State = "ERROR"
)

// MinSyncIntervalHours throttles how often a user can be resynced
// without an explicit force (spec MIN_SYNC_INTERVAL_HOURS=6).
const MinSyncIntervalHours = 6

// ProgressNotificationInterval is how many synced activities elapse
// between sync_progress notifications during the initial sync (spec
// PROGRESS_NOTIFICATION_INTERVAL=10).
const ProgressNotificationInterval = 10

// PostSyncRecalcMinNewActivities is how many newly split-synced
// activities after the initial sync trigger another profile
// recalculation (spec POST_SYNC_RECALC_MIN_NEW_ACTIVITIES=3).
const PostSyncRecalcMinNewActivities = 3

// MaxHistoryDays bounds how far back the very first sync reaches (spec
// MAX_HISTORY_DAYS=365).
const MaxHistoryDays = 365

// DefaultBatchSize is how many activities one sync pass requests from
// the provider (spec sync_user batch=10).
const DefaultBatchSize = 10

// APICallDelay is the courtesy pause between per-activity detail
// fetches inside one pass (spec API_CALL_DELAY=1.5s).
const APICallDelay = 1500 * time.Millisecond

// ProviderClient is the subset of pkg/provider.Client the pipeline needs.
type ProviderClient interface {
	ListActivities(ctx context.Context, userID string, afterEpoch int64, limit int) ([]activity.Activity, error)
	FetchActivityDetail(ctx context.Context, userID string, providerActivityID int64) (*activity.Activity, error)
}

// Pipeline runs one user's sync_user algorithm end to end.
type Pipeline struct {
	Store     store.Store
	Provider  ProviderClient
	Builder   *profile.ProfileBuilder
	Notifier  *notify.Bus
	EventSink EventSink // optional; nil is a no-op
	Logger    *slog.Logger
	Now       func() time.Time
	BatchSize int                 // defaults to DefaultBatchSize when 0
	Sleep     func(time.Duration) // overridable in tests; defaults to a timer that also stops waiting when ctx is cancelled
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) batchSize() int {
	if p.BatchSize > 0 {
		return p.BatchSize
	}
	return DefaultBatchSize
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Status is the coarse outcome of one SyncUser pass (spec §7).
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Skip reasons reported on a StatusSkipped Result.
const (
	ReasonAlreadyInProgress = "already_in_progress"
	ReasonNotConnected      = "not_connected"
	ReasonSyncedRecently    = "synced_recently"
)

// Result summarizes one SyncUser run. Callers consult it only for
// logging; the durable state lives on the SyncCursor.
type Result struct {
	Status              Status
	Reason              string
	Fetched             int // activities the provider returned
	Saved               int // activities newly inserted
	SplitsSynced        int // newly inserted activities whose splits were stored
	RecalculatedHiking  bool
	RecalculatedRunning bool
}

// SyncUser runs the sync_user state machine: acquire the user's
// in_progress lock, list one batch of new activities, fetch splits for
// the supported ones, advance the cursor watermarks, run the
// progress/completion/recalculation notification rules, and release
// the lock on both success and failure (spec §4.10). force bypasses the
// MinSyncIntervalHours throttle, used for a user's very first connect.
func (p *Pipeline) SyncUser(ctx context.Context, userID string, force bool) (Result, error) {
	user, err := p.Store.GetUser(ctx, userID)
	if err != nil {
		return Result{Status: StatusError, Reason: err.Error()}, fmt.Errorf("sync: get user: %w", err)
	}
	if user == nil || !user.ProviderConnected {
		return Result{Status: StatusSkipped, Reason: ReasonNotConnected}, nil
	}

	cursor, err := p.Store.GetOrCreateCursor(ctx, userID)
	if err != nil {
		return Result{Status: StatusError, Reason: err.Error()}, fmt.Errorf("sync: get cursor: %w", err)
	}

	// A concurrent pass for the same user observes the flag and returns
	// early without touching the database (spec testable property 9).
	if cursor.InProgress {
		return Result{Status: StatusSkipped, Reason: ReasonAlreadyInProgress}, nil
	}
	if !force && !cursor.LastSyncedAt.IsZero() && p.now().Sub(cursor.LastSyncedAt) < MinSyncIntervalHours*time.Hour {
		return Result{Status: StatusSkipped, Reason: ReasonSyncedRecently}, nil
	}

	cursor.InProgress = true
	cursor.InProgressStartedAt = p.now()
	if err := p.Store.SaveCursor(ctx, cursor); err != nil {
		return Result{Status: StatusError, Reason: err.Error()}, fmt.Errorf("sync: acquire lock: %w", err)
	}

	result, syncErr := p.runSync(ctx, userID, cursor)

	cursor.InProgress = false
	if syncErr == nil {
		cursor.LastSyncedAt = p.now()
		cursor.LastError = ""
		result.Status = StatusSuccess
	} else {
		cursor.LastError = syncErr.Error()
		result.Status = StatusError
		result.Reason = syncErr.Error()
	}
	if saveErr := p.Store.SaveCursor(ctx, cursor); saveErr != nil {
		p.logger().Error("sync: failed to release lock", "user_id", userID, "error", saveErr)
	}

	if syncErr != nil {
		p.logger().Error("sync: user sync failed", "user_id", userID, "error", syncErr)
		return result, syncErr
	}
	return result, nil
}

func (p *Pipeline) runSync(ctx context.Context, userID string, cursor *store.SyncCursor) (Result, error) {
	batch := p.batchSize()

	// Resume from the newest synced activity, or reach back
	// MaxHistoryDays on a user's very first pass.
	afterEpoch := cursor.NewestSyncedAt.Unix()
	if cursor.NewestSyncedAt.IsZero() {
		afterEpoch = p.now().AddDate(0, 0, -MaxHistoryDays).Unix()
	}

	summaries, err := p.Provider.ListActivities(ctx, userID, afterEpoch, batch)
	if err != nil {
		return Result{}, fmt.Errorf("sync: list activities: %w", err)
	}

	result := Result{Fetched: len(summaries)}

	var inserted []activity.Activity
	for _, summary := range summaries {
		ok, err := p.Store.InsertActivityIfAbsent(ctx, summary)
		if err != nil {
			return result, fmt.Errorf("sync: insert activity %d: %w", summary.ProviderActivityID, err)
		}
		if !ok {
			continue
		}
		inserted = append(inserted, summary)
	}
	result.Saved = len(inserted)

	// Detail fetches run after every summary is saved, so a mid-pass
	// failure never loses the activity list (spec §5 ordering). Failures
	// here are per-activity and do not abort the pass (spec §7.5).
	for i, a := range inserted {
		if !activity.SupportedTypes[a.Type] {
			continue
		}
		if i > 0 {
			p.sleep(ctx, APICallDelay)
		}
		detail, err := p.Provider.FetchActivityDetail(ctx, userID, a.ProviderActivityID)
		if err != nil {
			p.logger().Warn("sync: failed to fetch activity detail", "user_id", userID, "activity_id", a.ProviderActivityID, "error", err)
			continue
		}
		if err := p.Store.SetSplits(ctx, userID, a.ProviderActivityID, detail.Splits); err != nil {
			p.logger().Warn("sync: failed to store splits", "user_id", userID, "activity_id", a.ProviderActivityID, "error", err)
			continue
		}
		result.SplitsSynced++
	}

	p.advanceCursor(cursor, inserted, result)
	p.notifyProgress(ctx, userID, cursor, result)

	completedNow := false
	if !cursor.InitialSyncComplete && len(summaries) < batch {
		completedNow = true
		if err := p.completeInitialSync(ctx, userID, cursor, &result); err != nil {
			return result, err
		}
	}

	if !completedNow {
		if err := p.runCheckpoints(ctx, userID, cursor, inserted, &result); err != nil {
			p.logger().Warn("sync: checkpoint recalculation failed", "user_id", userID, "error", err)
		}
	}

	p.emit(ctx, userID, "sync.completed", result)
	return result, nil
}

// advanceCursor folds one pass's outcome into the cursor's watermarks
// and totals. NewestSyncedAt is monotonically non-decreasing across
// successful passes (spec §5 ordering guarantee).
func (p *Pipeline) advanceCursor(cursor *store.SyncCursor, inserted []activity.Activity, result Result) {
	for _, a := range inserted {
		if cursor.NewestSyncedAt.IsZero() || a.StartTime.After(cursor.NewestSyncedAt) {
			cursor.NewestSyncedAt = a.StartTime
		}
		if cursor.OldestSyncedAt.IsZero() || a.StartTime.Before(cursor.OldestSyncedAt) {
			cursor.OldestSyncedAt = a.StartTime
		}
	}
	cursor.TotalActivitiesSynced += result.Saved
	cursor.ActivitiesWithSplits += result.SplitsSynced
}

// notifyProgress emits sync_progress whenever the running total crosses
// a multiple of ProgressNotificationInterval during the initial sync,
// plus a one-time notification after the very first saved batch so a
// freshly connected user sees movement immediately.
func (p *Pipeline) notifyProgress(ctx context.Context, userID string, cursor *store.SyncCursor, result Result) {
	if cursor.InitialSyncComplete || result.Saved == 0 {
		return
	}

	before := cursor.TotalActivitiesSynced - result.Saved
	crossed := cursor.TotalActivitiesSynced/ProgressNotificationInterval > before/ProgressNotificationInterval

	if !crossed && cursor.FirstBatchNotified {
		return
	}
	cursor.FirstBatchNotified = true
	p.notify(ctx, userID, notify.KindSyncProgress, map[string]string{
		"processed": fmt.Sprintf("%d", cursor.ActivitiesWithSplits),
		"total":     fmt.Sprintf("%d", cursor.TotalActivitiesSynced),
	})
}

// completeInitialSync handles the short-page signal: the provider
// returned fewer activities than requested, so history is exhausted.
// Marks the cursor complete, emits sync_complete once, and forces a
// final profile rebuild for both kinds (spec §4.10 step 9).
func (p *Pipeline) completeInitialSync(ctx context.Context, userID string, cursor *store.SyncCursor, result *Result) error {
	cursor.InitialSyncComplete = true
	cursor.LastRecalcCheckpoint = checkpointDone
	cursor.NewActivitiesSinceRecalc = 0

	p.notify(ctx, userID, notify.KindSyncComplete, map[string]string{
		"new_activities": fmt.Sprintf("%d", cursor.TotalActivitiesSynced),
	})

	return p.rebuildProfiles(ctx, userID, true, true, result)
}

func (p *Pipeline) notify(ctx context.Context, userID string, kind notify.Kind, data map[string]string) {
	if p.Notifier == nil {
		return
	}
	if err := p.Notifier.CreateAndSend(ctx, notify.Notification{UserID: userID, Kind: kind, Data: data}); err != nil {
		p.logger().Warn("sync: notification failed", "user_id", userID, "kind", kind, "error", err)
	}
}

func (p *Pipeline) emit(ctx context.Context, userID, eventType string, result Result) {
	if p.EventSink == nil {
		return
	}
	if err := p.EventSink.Publish(ctx, eventType, map[string]interface{}{
		"user_id":        userID,
		"new_activities": result.Saved,
	}); err != nil {
		p.logger().Warn("sync: event publish failed", "user_id", userID, "event_type", eventType, "error", err)
	}
}

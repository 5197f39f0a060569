package store

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/iterator"
)

// GetOrCreateCursor fetches the user's sync cursor, creating a fresh
// zero-valued one on first sync.
func (s *FirestoreStore) GetOrCreateCursor(ctx context.Context, userID string) (*SyncCursor, error) {
	ref := s.client.Cursors().Doc(userID)
	doc, err := ref.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: get cursor: %w", err)
	}
	if doc != nil {
		return &doc.SyncCursor, nil
	}

	fresh := SyncCursor{UserID: userID}
	if err := ref.Set(ctx, &cursorDoc{fresh}); err != nil {
		return nil, fmt.Errorf("store: create cursor: %w", err)
	}
	return &fresh, nil
}

// SaveCursor persists the full cursor state.
func (s *FirestoreStore) SaveCursor(ctx context.Context, cursor *SyncCursor) error {
	return s.client.Cursors().Doc(cursor.UserID).Set(ctx, &cursorDoc{*cursor})
}

// ListStaleCursors returns cursors whose last sync predates olderThan,
// used by the Scheduler's periodic stale-user scan (spec
// MIN_SYNC_INTERVAL_HOURS).
func (s *FirestoreStore) ListStaleCursors(ctx context.Context, olderThan time.Time) ([]SyncCursor, error) {
	iter := s.client.fs.Collection("sync_cursors").
		Where("last_synced_at", "<", olderThan).
		Where("in_progress", "==", false).
		Documents(ctx)
	defer iter.Stop()

	var out []SyncCursor
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: list stale cursors: %w", err)
		}
		out = append(out, firestoreToCursor(snap.Data()).SyncCursor)
	}
	return out, nil
}

// ListStuckInProgress returns cursors stuck "in_progress" since before
// olderThan, used by the crash-recovery sweep (spec: clears stuck
// in_progress older than 1 hour).
func (s *FirestoreStore) ListStuckInProgress(ctx context.Context, olderThan time.Time) ([]SyncCursor, error) {
	iter := s.client.fs.Collection("sync_cursors").
		Where("in_progress", "==", true).
		Where("in_progress_started_at", "<", olderThan).
		Documents(ctx)
	defer iter.Stop()

	var out []SyncCursor
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: list stuck cursors: %w", err)
		}
		out = append(out, firestoreToCursor(snap.Data()).SyncCursor)
	}
	return out, nil
}

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/store"
)

func TestSchedulerEnqueueDedupesWaitingUser(t *testing.T) {
	st := store.NewMemoryStore()
	p := newTestPipeline(st, &fakeProvider{}, nil)
	s := NewScheduler(p, st, nil)

	s.Enqueue("u1")
	s.Enqueue("u1")

	assert.Equal(t, 1, len(s.queue))
}

func TestSchedulerDrainsQueueAndSyncsUsers(t *testing.T) {
	st := store.NewMemoryStore()
	provider := &fakeProvider{
		summaries: []activity.Activity{{ProviderActivityID: 1, UserID: "u1", Type: activity.TypeRun, StartTime: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}},
		details:   map[int64]activity.Activity{1: {ProviderActivityID: 1, UserID: "u1", Type: activity.TypeRun}},
	}
	p := newTestPipeline(st, provider, nil)
	s := NewScheduler(p, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Enqueue("u1")

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		stored, err := st.FindActivity(context.Background(), "u1", 1)
		return err == nil && stored != nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestSchedulerRunStaleScanEnqueuesStaleUsers(t *testing.T) {
	st := store.NewMemoryStore()
	cursor, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	cursor.LastSyncedAt = time.Now().Add(-2 * MinSyncIntervalHours * time.Hour)
	require.NoError(t, st.SaveCursor(context.Background(), cursor))

	p := newTestPipeline(st, &fakeProvider{}, nil)
	s := NewScheduler(p, st, nil)

	s.runStaleScan(context.Background())
	assert.Equal(t, 1, len(s.queue))
}

func TestSchedulerStaleScanSkipsRecentlySyncedUsers(t *testing.T) {
	st := store.NewMemoryStore()
	cursor, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	cursor.LastSyncedAt = time.Now()
	require.NoError(t, st.SaveCursor(context.Background(), cursor))

	p := newTestPipeline(st, &fakeProvider{}, nil)
	s := NewScheduler(p, st, nil)

	s.runStaleScan(context.Background())
	assert.Equal(t, 0, len(s.queue))
}

func TestSchedulerStuckSweepClearsOldLocks(t *testing.T) {
	st := store.NewMemoryStore()
	cursor, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	cursor.InProgress = true
	cursor.InProgressStartedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, st.SaveCursor(context.Background(), cursor))

	p := newTestPipeline(st, &fakeProvider{}, nil)
	s := NewScheduler(p, st, nil)

	s.runStuckSweep(context.Background())

	stale, err := st.ListStaleCursors(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.False(t, stale[0].InProgress)
}

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/notify"
	"github.com/trailtime/core/pkg/profile"
	"github.com/trailtime/core/pkg/store"
)

type fakeProvider struct {
	summaries []activity.Activity
	details   map[int64]activity.Activity
	lastLimit int
}

func (f *fakeProvider) ListActivities(_ context.Context, _ string, _ int64, limit int) ([]activity.Activity, error) {
	f.lastLimit = limit
	if limit > 0 && len(f.summaries) > limit {
		return f.summaries[:limit], nil
	}
	return f.summaries, nil
}

func (f *fakeProvider) FetchActivityDetail(_ context.Context, _ string, providerActivityID int64) (*activity.Activity, error) {
	d, ok := f.details[providerActivityID]
	if !ok {
		return nil, assert.AnError
	}
	return &d, nil
}

type failingProvider struct{}

func (failingProvider) ListActivities(context.Context, string, int64, int) ([]activity.Activity, error) {
	return nil, assert.AnError
}

func (failingProvider) FetchActivityDetail(context.Context, string, int64) (*activity.Activity, error) {
	return nil, assert.AnError
}

type fakeResolver struct{ channel string }

func (f fakeResolver) ChannelFor(_ context.Context, _ string) (string, bool) {
	if f.channel == "" {
		return "", false
	}
	return f.channel, true
}

type fakeAdapter struct{ sent []notify.Notification }

func (f *fakeAdapter) Send(_ context.Context, n notify.Notification, _ string) error {
	f.sent = append(f.sent, n)
	return nil
}

type fakeEventSink struct{ published []string }

func (f *fakeEventSink) Publish(_ context.Context, eventType string, _ map[string]interface{}) error {
	f.published = append(f.published, eventType)
	return nil
}

func newTestPipeline(st *store.MemoryStore, provider ProviderClient, sink EventSink) *Pipeline {
	_ = st.UpsertUser(context.Background(), store.UserRecord{UserID: "u1", ProviderConnected: true})
	bus := notify.New(st, fakeResolver{}, &fakeAdapter{}, nil)
	return &Pipeline{
		Store:     st,
		Provider:  provider,
		Builder:   &profile.ProfileBuilder{},
		Notifier:  bus,
		EventSink: sink,
		Now:       func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) },
		Sleep:     func(time.Duration) {},
	}
}

func splitsFor(gradientPercent float64, n int) []activity.Split {
	splits := make([]activity.Split, n)
	for i := range splits {
		splits[i] = activity.Split{Ordinal: i + 1, DistanceM: 1000, MovingTimeS: 300, ElevDiffM: gradientPercent * 10}
	}
	return splits
}

func summariesAndDetails(n int, typ activity.Type) ([]activity.Activity, map[int64]activity.Activity) {
	var summaries []activity.Activity
	details := map[int64]activity.Activity{}
	for i := int64(1); i <= int64(n); i++ {
		a := activity.Activity{
			ProviderActivityID: i, UserID: "u1", Type: typ,
			StartTime: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
			DistanceM: 5000,
		}
		summaries = append(summaries, a)
		d := a
		d.Splits = splitsFor(0, 5)
		details[i] = d
	}
	return summaries, details
}

func countKind(t *testing.T, st *store.MemoryStore, kind notify.Kind) int {
	t.Helper()
	all, err := st.ListNotifications(context.Background(), "u1", false, 0)
	require.NoError(t, err)
	count := 0
	for _, n := range all {
		if n.Kind == kind {
			count++
		}
	}
	return count
}

func TestSyncUserInsertsNewActivitiesAndFetchesSplits(t *testing.T) {
	st := store.NewMemoryStore()
	summaries, details := summariesAndDetails(1, activity.TypeHike)
	p := newTestPipeline(st, &fakeProvider{summaries: summaries, details: details}, nil)

	result, err := p.SyncUser(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, result.Saved)
	assert.Equal(t, 1, result.SplitsSynced)

	stored, err := st.FindActivity(context.Background(), "u1", 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.SplitsSynced)
	assert.Len(t, stored.Splits, 5)
}

func TestSyncUserRequestsConfiguredBatch(t *testing.T) {
	st := store.NewMemoryStore()
	provider := &fakeProvider{}
	p := newTestPipeline(st, provider, nil)

	_, err := p.SyncUser(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, provider.lastLimit)

	p.BatchSize = 30
	cursor, _ := st.GetOrCreateCursor(context.Background(), "u1")
	cursor.LastSyncedAt = time.Time{}
	require.NoError(t, st.SaveCursor(context.Background(), cursor))
	_, err = p.SyncUser(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 30, provider.lastLimit)
}

func TestSyncUserSkipsDuplicateActivities(t *testing.T) {
	st := store.NewMemoryStore()
	summary := activity.Activity{ProviderActivityID: 1, UserID: "u1", Type: activity.TypeRun, StartTime: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	_, err := st.InsertActivityIfAbsent(context.Background(), summary)
	require.NoError(t, err)

	provider := &fakeProvider{summaries: []activity.Activity{summary}, details: map[int64]activity.Activity{}}
	p := newTestPipeline(st, provider, nil)

	result, err := p.SyncUser(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 0, result.Saved)
}

func TestSyncUserThrottlesWithoutForce(t *testing.T) {
	st := store.NewMemoryStore()
	cursor, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	cursor.LastSyncedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).Add(-1 * time.Hour)
	require.NoError(t, st.SaveCursor(context.Background(), cursor))

	p := newTestPipeline(st, &fakeProvider{}, nil)

	result, err := p.SyncUser(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, ReasonSyncedRecently, result.Reason)
}

func TestSyncUserForceBypassesThrottle(t *testing.T) {
	st := store.NewMemoryStore()
	cursor, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	cursor.LastSyncedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).Add(-1 * time.Hour)
	require.NoError(t, st.SaveCursor(context.Background(), cursor))

	provider := &fakeProvider{
		summaries: []activity.Activity{{ProviderActivityID: 2, UserID: "u1", Type: activity.TypeRun, StartTime: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)}},
		details:   map[int64]activity.Activity{},
	}
	p := newTestPipeline(st, provider, nil)

	result, err := p.SyncUser(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Saved)
}

func TestSyncUserSkipsConcurrentRunWithoutTouchingStore(t *testing.T) {
	st := store.NewMemoryStore()
	cursor, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	cursor.InProgress = true
	cursor.InProgressStartedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveCursor(context.Background(), cursor))

	p := newTestPipeline(st, &fakeProvider{}, nil)
	result, err := p.SyncUser(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, ReasonAlreadyInProgress, result.Reason)

	after, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, after.InProgress)
	assert.True(t, after.LastSyncedAt.IsZero())
}

func TestSyncUserSkipsUnconnectedUser(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.UpsertUser(context.Background(), store.UserRecord{UserID: "u2", ProviderConnected: false}))
	p := newTestPipeline(st, &fakeProvider{}, nil)

	result, err := p.SyncUser(context.Background(), "u2", false)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, ReasonNotConnected, result.Reason)

	cursor, err := st.GetOrCreateCursor(context.Background(), "u2")
	require.NoError(t, err)
	assert.False(t, cursor.InProgress)
	assert.True(t, cursor.LastSyncedAt.IsZero())
}

func TestSyncUserRecordsLastErrorAndReleasesLock(t *testing.T) {
	st := store.NewMemoryStore()
	p := newTestPipeline(st, failingProvider{}, nil)

	result, err := p.SyncUser(context.Background(), "u1", false)
	require.Error(t, err)
	assert.Equal(t, StatusError, result.Status)

	cursor, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, cursor.InProgress)
	assert.NotEmpty(t, cursor.LastError)
}

func TestSyncUserEmitsCompletionEvent(t *testing.T) {
	st := store.NewMemoryStore()
	sink := &fakeEventSink{}
	summaries, details := summariesAndDetails(1, activity.TypeRun)
	p := newTestPipeline(st, &fakeProvider{summaries: summaries, details: details}, sink)

	_, err := p.SyncUser(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Contains(t, sink.published, "sync.completed")
}

func TestSyncUserShortPageCompletesInitialSync(t *testing.T) {
	st := store.NewMemoryStore()
	summaries, details := summariesAndDetails(3, activity.TypeHike)
	p := newTestPipeline(st, &fakeProvider{summaries: summaries, details: details}, nil)

	result, err := p.SyncUser(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.True(t, result.RecalculatedHiking)

	cursor, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, cursor.InitialSyncComplete)
	assert.Equal(t, 100, cursor.LastRecalcCheckpoint)
	assert.Equal(t, 3, cursor.TotalActivitiesSynced)
	assert.Equal(t, 1, countKind(t, st, notify.KindSyncComplete))
}

func TestSyncUserFullBatchLeavesInitialSyncOpen(t *testing.T) {
	st := store.NewMemoryStore()
	summaries, details := summariesAndDetails(DefaultBatchSize, activity.TypeRun)
	p := newTestPipeline(st, &fakeProvider{summaries: summaries, details: details}, nil)

	_, err := p.SyncUser(context.Background(), "u1", false)
	require.NoError(t, err)

	cursor, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, cursor.InitialSyncComplete)
	assert.Equal(t, 0, countKind(t, st, notify.KindSyncComplete))
	assert.Equal(t, 1, countKind(t, st, notify.KindSyncProgress))
}

func TestSyncUserAdvancesWatermarksMonotonically(t *testing.T) {
	st := store.NewMemoryStore()
	summaries, details := summariesAndDetails(2, activity.TypeRun)
	provider := &fakeProvider{summaries: summaries, details: details}
	p := newTestPipeline(st, provider, nil)

	_, err := p.SyncUser(context.Background(), "u1", true)
	require.NoError(t, err)

	cursor, err := st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	newest := cursor.NewestSyncedAt
	oldest := cursor.OldestSyncedAt
	assert.True(t, newest.After(oldest))

	// A second pass with nothing new must not move either watermark.
	provider.summaries = nil
	_, err = p.SyncUser(context.Background(), "u1", true)
	require.NoError(t, err)

	cursor, err = st.GetOrCreateCursor(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, newest, cursor.NewestSyncedAt)
	assert.Equal(t, oldest, cursor.OldestSyncedAt)
}

func TestSyncUserIdempotentSecondPass(t *testing.T) {
	st := store.NewMemoryStore()
	summaries, details := summariesAndDetails(3, activity.TypeHike)
	provider := &fakeProvider{summaries: summaries, details: details}
	p := newTestPipeline(st, provider, nil)

	_, err := p.SyncUser(context.Background(), "u1", true)
	require.NoError(t, err)

	firstActivities, _ := st.ListActivities(context.Background(), "u1")
	firstNotifications, _ := st.ListNotifications(context.Background(), "u1", false, 0)
	firstCursor, _ := st.GetOrCreateCursor(context.Background(), "u1")

	provider.summaries = nil
	_, err = p.SyncUser(context.Background(), "u1", true)
	require.NoError(t, err)

	secondActivities, _ := st.ListActivities(context.Background(), "u1")
	secondNotifications, _ := st.ListNotifications(context.Background(), "u1", false, 0)
	secondCursor, _ := st.GetOrCreateCursor(context.Background(), "u1")

	assert.Equal(t, firstActivities, secondActivities)
	assert.Equal(t, len(firstNotifications), len(secondNotifications))

	// Everything on the cursor but the last-synced time is untouched
	// (spec testable property 8).
	firstCursor.LastSyncedAt = secondCursor.LastSyncedAt
	assert.Equal(t, *firstCursor, *secondCursor)
}

func TestSyncUserPostInitialRecalcAccumulatesToThree(t *testing.T) {
	st := store.NewMemoryStore()
	provider := &fakeProvider{}
	p := newTestPipeline(st, provider, nil)

	// Initial sync: empty history, completes immediately.
	_, err := p.SyncUser(context.Background(), "u1", true)
	require.NoError(t, err)

	// Two new activities: below the recalculation minimum.
	summaries, details := summariesAndDetails(2, activity.TypeRun)
	provider.summaries = summaries
	provider.details = details
	result, err := p.SyncUser(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.False(t, result.RecalculatedRunning)

	cursor, _ := st.GetOrCreateCursor(context.Background(), "u1")
	assert.Equal(t, 2, cursor.NewActivitiesSinceRecalc)

	// One more crosses the threshold and resets the counter.
	more, moreDetails := summariesAndDetails(3, activity.TypeRun)
	provider.summaries = more[2:]
	provider.details = moreDetails
	result, err = p.SyncUser(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.True(t, result.RecalculatedRunning)

	cursor, _ = st.GetOrCreateCursor(context.Background(), "u1")
	assert.Equal(t, 0, cursor.NewActivitiesSinceRecalc)
}

func TestSyncUserRebuildsOnlyBatchKindsAtCheckpoint(t *testing.T) {
	st := store.NewMemoryStore()
	summaries, details := summariesAndDetails(DefaultBatchSize, activity.TypeRun)
	p := newTestPipeline(st, &fakeProvider{summaries: summaries, details: details}, nil)

	result, err := p.SyncUser(context.Background(), "u1", false)
	require.NoError(t, err)

	// Full batch: initial sync stays open, but 10 split-synced running
	// activities pass the first checkpoint. Only the run profile
	// rebuilds; no hikes appeared in this batch.
	assert.True(t, result.RecalculatedRunning)
	assert.False(t, result.RecalculatedHiking)

	rp, err := st.GetRunProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, rp)
	hp, err := st.GetHikingProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, hp)
}

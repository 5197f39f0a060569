package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/notify"
	"github.com/trailtime/core/pkg/oauth"
	"github.com/trailtime/core/pkg/profile"
)

// MemoryStore is an in-memory Store fake for tests; it implements the
// full Store interface with simple map-backed collections guarded by a
// single mutex.
type MemoryStore struct {
	mu sync.Mutex

	users         map[string]UserRecord
	activities    map[string]map[int64]activity.Activity // userID -> providerActivityID -> activity
	cursors       map[string]SyncCursor
	hikeProfiles  map[string]profile.HikingProfile
	runProfiles   map[string]profile.RunProfile
	tokens        map[string]oauth.StoredToken
	notifications map[string][]notify.Notification
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         map[string]UserRecord{},
		activities:    map[string]map[int64]activity.Activity{},
		cursors:       map[string]SyncCursor{},
		hikeProfiles:  map[string]profile.HikingProfile{},
		runProfiles:   map[string]profile.RunProfile{},
		tokens:        map[string]oauth.StoredToken{},
		notifications: map[string][]notify.Notification{},
	}
}

func (m *MemoryStore) GetUser(_ context.Context, userID string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryStore) UpsertUser(_ context.Context, u UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
	return nil
}

func (m *MemoryStore) FindActivity(_ context.Context, userID string, providerActivityID int64) (*activity.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser, ok := m.activities[userID]
	if !ok {
		return nil, nil
	}
	a, ok := byUser[providerActivityID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *MemoryStore) ListActivities(_ context.Context, userID string) ([]activity.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser := m.activities[userID]
	out := make([]activity.Activity, 0, len(byUser))
	for _, a := range byUser {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderActivityID < out[j].ProviderActivityID })
	return out, nil
}

func (m *MemoryStore) QueryActivities(_ context.Context, userID string, q ActivityQuery) ([]activity.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	typeAllowed := func(t activity.Type) bool {
		if len(q.Types) == 0 {
			return true
		}
		for _, want := range q.Types {
			if t == want {
				return true
			}
		}
		return false
	}

	var out []activity.Activity
	for _, a := range m.activities[userID] {
		if typeAllowed(a.Type) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) InsertActivityIfAbsent(_ context.Context, a activity.Activity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser, ok := m.activities[a.UserID]
	if !ok {
		byUser = map[int64]activity.Activity{}
		m.activities[a.UserID] = byUser
	}
	if _, exists := byUser[a.ProviderActivityID]; exists {
		return false, nil
	}
	byUser[a.ProviderActivityID] = a
	return true, nil
}

func (m *MemoryStore) SetSplits(_ context.Context, userID string, providerActivityID int64, splits []activity.Split) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser, ok := m.activities[userID]
	if !ok {
		return fmt.Errorf("memory store: no activities for user %s", userID)
	}
	a, ok := byUser[providerActivityID]
	if !ok {
		return fmt.Errorf("memory store: activity %d not found for user %s", providerActivityID, userID)
	}
	a.Splits = splits
	a.SplitsSynced = true
	byUser[providerActivityID] = a
	return nil
}

func (m *MemoryStore) ListSplits(_ context.Context, userID string, providerActivityID int64) ([]activity.Split, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[userID][providerActivityID]
	if !ok {
		return nil, fmt.Errorf("memory store: activity %d not found for user %s", providerActivityID, userID)
	}
	return append([]activity.Split(nil), a.Splits...), nil
}

func (m *MemoryStore) DeleteSplits(_ context.Context, userID string, providerActivityID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[userID][providerActivityID]
	if !ok {
		return fmt.Errorf("memory store: activity %d not found for user %s", providerActivityID, userID)
	}
	a.Splits = nil
	a.SplitsSynced = false
	m.activities[userID][providerActivityID] = a
	return nil
}

func (m *MemoryStore) GetOrCreateCursor(_ context.Context, userID string) (*SyncCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[userID]
	if !ok {
		c = SyncCursor{UserID: userID}
		m.cursors[userID] = c
	}
	return &c, nil
}

func (m *MemoryStore) SaveCursor(_ context.Context, cursor *SyncCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[cursor.UserID] = *cursor
	return nil
}

func (m *MemoryStore) ListStaleCursors(_ context.Context, olderThan time.Time) ([]SyncCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SyncCursor
	for _, c := range m.cursors {
		if !c.InProgress && c.LastSyncedAt.Before(olderThan) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListStuckInProgress(_ context.Context, olderThan time.Time) ([]SyncCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SyncCursor
	for _, c := range m.cursors {
		if c.InProgress && c.InProgressStartedAt.Before(olderThan) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetHikingProfile(_ context.Context, userID string) (*profile.HikingProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.hikeProfiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) UpsertHikingProfile(_ context.Context, p profile.HikingProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hikeProfiles[p.UserID] = p
	return nil
}

func (m *MemoryStore) GetRunProfile(_ context.Context, userID string) (*profile.RunProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.runProfiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) UpsertRunProfile(_ context.Context, p profile.RunProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runProfiles[p.UserID] = p
	return nil
}

func (m *MemoryStore) GetToken(_ context.Context, userID string) (*oauth.StoredToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[userID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *MemoryStore) UpsertToken(_ context.Context, userID string, tok oauth.StoredToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = tok
	return nil
}

func (m *MemoryStore) DeleteToken(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID)
	return nil
}

func (m *MemoryStore) InsertNotification(_ context.Context, n notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	m.notifications[n.UserID] = append(m.notifications[n.UserID], n)
	return nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]notify.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Notification
	for _, n := range m.notifications[userID] {
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkRead(_ context.Context, userID string, notificationIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range notificationIDs {
		wanted[id] = true
	}
	for i, n := range m.notifications[userID] {
		if wanted[n.ID] {
			m.notifications[userID][i].Read = true
			delete(wanted, n.ID)
		}
	}
	if len(wanted) > 0 {
		return fmt.Errorf("memory store: %d notification(s) not found for user %s", len(wanted), userID)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)

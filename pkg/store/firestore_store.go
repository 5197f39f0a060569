package store

import (
	"context"
	"fmt"
	"strconv"

	"cloud.google.com/go/firestore"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/notify"
	"github.com/trailtime/core/pkg/oauth"
	"github.com/trailtime/core/pkg/profile"
)

// FirestoreStore implements Store over the Client's typed collections.
type FirestoreStore struct {
	client *Client
}

// NewFirestoreStore builds a Store backed by Firestore.
func NewFirestoreStore(client *Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	doc, err := s.client.Users().Doc(userID).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	return &doc.UserRecord, nil
}

func (s *FirestoreStore) UpsertUser(ctx context.Context, u UserRecord) error {
	return s.client.Users().Doc(u.UserID).Set(ctx, &userDoc{u})
}

func (s *FirestoreStore) FindActivity(ctx context.Context, userID string, providerActivityID int64) (*activity.Activity, error) {
	doc, err := s.client.Activities(userID).Doc(strconv.FormatInt(providerActivityID, 10)).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: find activity: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	return &doc.Activity, nil
}

func (s *FirestoreStore) ListActivities(ctx context.Context, userID string) ([]activity.Activity, error) {
	docs, err := s.client.Activities(userID).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list activities: %w", err)
	}
	out := make([]activity.Activity, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Activity)
	}
	return out, nil
}

// QueryActivities lists a user's activities newest-first with an
// optional type filter and offset/limit pagination. The type filter and
// ordering run server-side; the converter handles the rest.
func (s *FirestoreStore) QueryActivities(ctx context.Context, userID string, q ActivityQuery) ([]activity.Activity, error) {
	col := s.client.Activities(userID)
	query := col.Ref.OrderBy("start_time", firestore.Desc)
	if len(q.Types) > 0 {
		types := make([]string, 0, len(q.Types))
		for _, t := range q.Types {
			types = append(types, string(t))
		}
		query = query.Where("type", "in", types)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("store: query activities: %w", err)
	}
	out := make([]activity.Activity, 0, len(docs))
	for _, d := range docs {
		out = append(out, firestoreToActivity(d.Data()).Activity)
	}
	return out, nil
}

func (s *FirestoreStore) InsertActivityIfAbsent(ctx context.Context, a activity.Activity) (bool, error) {
	ref := s.client.Activities(a.UserID).Doc(strconv.FormatInt(a.ProviderActivityID, 10))
	existing, err := ref.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("store: check activity existence: %w", err)
	}
	if existing != nil {
		return false, nil
	}
	if err := ref.Set(ctx, &activityDoc{a}); err != nil {
		return false, fmt.Errorf("store: insert activity: %w", err)
	}
	return true, nil
}

func (s *FirestoreStore) SetSplits(ctx context.Context, userID string, providerActivityID int64, splits []activity.Split) error {
	ref := s.client.Activities(userID).Doc(strconv.FormatInt(providerActivityID, 10))
	doc, err := ref.Get(ctx)
	if err != nil {
		return fmt.Errorf("store: get activity for splits: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("store: activity %d not found for user %s", providerActivityID, userID)
	}
	doc.Splits = splits
	doc.SplitsSynced = true
	return ref.Set(ctx, doc)
}

func (s *FirestoreStore) ListSplits(ctx context.Context, userID string, providerActivityID int64) ([]activity.Split, error) {
	a, err := s.FindActivity(ctx, userID, providerActivityID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("store: activity %d not found for user %s", providerActivityID, userID)
	}
	return a.Splits, nil
}

func (s *FirestoreStore) DeleteSplits(ctx context.Context, userID string, providerActivityID int64) error {
	ref := s.client.Activities(userID).Doc(strconv.FormatInt(providerActivityID, 10))
	doc, err := ref.Get(ctx)
	if err != nil {
		return fmt.Errorf("store: get activity for split delete: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("store: activity %d not found for user %s", providerActivityID, userID)
	}
	doc.Splits = nil
	doc.SplitsSynced = false
	if _, err := ref.Ref.Set(ctx, activityToFirestore(doc)); err != nil {
		return fmt.Errorf("store: delete splits: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetHikingProfile(ctx context.Context, userID string) (*profile.HikingProfile, error) {
	doc, err := s.client.HikingProfiles(userID).Doc("hiking").Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: get hiking profile: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	return &doc.HikingProfile, nil
}

func (s *FirestoreStore) UpsertHikingProfile(ctx context.Context, p profile.HikingProfile) error {
	return s.client.HikingProfiles(p.UserID).Doc("hiking").Set(ctx, &hikingProfileDoc{p})
}

func (s *FirestoreStore) GetRunProfile(ctx context.Context, userID string) (*profile.RunProfile, error) {
	doc, err := s.client.RunProfiles(userID).Doc("running").Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: get run profile: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	return &doc.RunProfile, nil
}

func (s *FirestoreStore) UpsertRunProfile(ctx context.Context, p profile.RunProfile) error {
	return s.client.RunProfiles(p.UserID).Doc("running").Set(ctx, &runProfileDoc{p})
}

func (s *FirestoreStore) GetToken(ctx context.Context, userID string) (*oauth.StoredToken, error) {
	doc, err := s.client.Tokens(userID).Doc("strava").Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: get token: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	return &doc.StoredToken, nil
}

func (s *FirestoreStore) UpsertToken(ctx context.Context, userID string, tok oauth.StoredToken) error {
	return s.client.Tokens(userID).Doc("strava").Set(ctx, &tokenDoc{tok})
}

func (s *FirestoreStore) DeleteToken(ctx context.Context, userID string) error {
	return s.client.Tokens(userID).Doc("strava").Delete(ctx)
}

func (s *FirestoreStore) InsertNotification(ctx context.Context, n notify.Notification) error {
	ref := s.client.Notifications(n.UserID).NewDoc()
	n.ID = ref.ID()
	return ref.Set(ctx, &notificationDoc{n})
}

func (s *FirestoreStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notify.Notification, error) {
	query := s.client.Notifications(userID).Ref.OrderBy("created_at", firestore.Desc)
	if unreadOnly {
		query = query.Where("read", "==", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("store: list notifications: %w", err)
	}
	out := make([]notify.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, firestoreToNotification(d.Data()).Notification)
	}
	return out, nil
}

func (s *FirestoreStore) MarkRead(ctx context.Context, userID string, notificationIDs []string) error {
	for _, id := range notificationIDs {
		if err := s.client.Notifications(userID).Doc(id).Update(ctx, map[string]interface{}{"read": true}); err != nil {
			return fmt.Errorf("store: mark notification %s read: %w", id, err)
		}
	}
	return nil
}

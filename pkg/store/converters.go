package store

import (
	"time"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/gradient"
	"github.com/trailtime/core/pkg/notify"
	"github.com/trailtime/core/pkg/oauth"
	"github.com/trailtime/core/pkg/profile"
)

// --- helpers ---

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func getInt64(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func getFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func getTime(m map[string]interface{}, key string) time.Time {
	if v, ok := m[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// --- activityDoc: users/{uid}/activities/{providerActivityID} ---

type activityDoc struct {
	activity.Activity
}

func activityToFirestore(a *activityDoc) map[string]interface{} {
	splits := make([]interface{}, 0, len(a.Splits))
	for _, s := range a.Splits {
		splits = append(splits, map[string]interface{}{
			"ordinal":       s.Ordinal,
			"distance_m":    s.DistanceM,
			"moving_time_s": s.MovingTimeS,
			"elev_diff_m":   s.ElevDiffM,
		})
	}
	return map[string]interface{}{
		"provider_activity_id": a.ProviderActivityID,
		"user_id":              a.UserID,
		"name":                 a.Name,
		"type":                 string(a.Type),
		"start_time":           a.StartTime,
		"distance_m":           a.DistanceM,
		"moving_time_s":        a.MovingTimeS,
		"elapsed_time_s":       a.ElapsedTimeS,
		"elevation_gain_m":     a.ElevationGainM,
		"elevation_loss_m":     a.ElevationLossM,
		"average_speed_mps":    a.AverageSpeedMps,
		"max_speed_mps":        a.MaxSpeedMps,
		"average_heartrate":    a.AverageHeartrate,
		"max_heartrate":        a.MaxHeartrate,
		"splits_synced":        a.SplitsSynced,
		"splits":               splits,
	}
}

func firestoreToActivity(m map[string]interface{}) *activityDoc {
	var splits []activity.Split
	if raw, ok := m["splits"].([]interface{}); ok {
		for _, r := range raw {
			sm, ok := r.(map[string]interface{})
			if !ok {
				continue
			}
			splits = append(splits, activity.Split{
				Ordinal:     int(getInt64(sm, "ordinal")),
				DistanceM:   getFloat(sm, "distance_m"),
				MovingTimeS: int(getInt64(sm, "moving_time_s")),
				ElevDiffM:   getFloat(sm, "elev_diff_m"),
			})
		}
	}

	return &activityDoc{activity.Activity{
		ProviderActivityID: getInt64(m, "provider_activity_id"),
		UserID:             getString(m, "user_id"),
		Name:               getString(m, "name"),
		Type:               activity.Type(getString(m, "type")),
		StartTime:          getTime(m, "start_time"),
		DistanceM:          getFloat(m, "distance_m"),
		MovingTimeS:        int(getInt64(m, "moving_time_s")),
		ElapsedTimeS:       int(getInt64(m, "elapsed_time_s")),
		ElevationGainM:     getFloat(m, "elevation_gain_m"),
		ElevationLossM:     getFloat(m, "elevation_loss_m"),
		AverageSpeedMps:    getFloat(m, "average_speed_mps"),
		MaxSpeedMps:        getFloat(m, "max_speed_mps"),
		AverageHeartrate:   getFloat(m, "average_heartrate"),
		MaxHeartrate:       getFloat(m, "max_heartrate"),
		SplitsSynced:       getBool(m, "splits_synced"),
		Splits:             splits,
	}}
}

// --- cursorDoc: sync_cursors/{uid} ---

// --- userDoc: top-level users/{uid} ---

type userDoc struct {
	UserRecord
}

func userToFirestore(u *userDoc) map[string]interface{} {
	return map[string]interface{}{
		"user_id":            u.UserID,
		"provider_connected": u.ProviderConnected,
		"telegram_chat_id":   u.TelegramChatID,
	}
}

func firestoreToUser(m map[string]interface{}) *userDoc {
	return &userDoc{UserRecord{
		UserID:            getString(m, "user_id"),
		ProviderConnected: getBool(m, "provider_connected"),
		TelegramChatID:    getString(m, "telegram_chat_id"),
	}}
}

type cursorDoc struct {
	SyncCursor
}

func cursorToFirestore(c *cursorDoc) map[string]interface{} {
	return map[string]interface{}{
		"user_id":                     c.UserID,
		"oldest_synced_at":            c.OldestSyncedAt,
		"newest_synced_at":            c.NewestSyncedAt,
		"total_activities_synced":     c.TotalActivitiesSynced,
		"activities_with_splits":      c.ActivitiesWithSplits,
		"last_error":                  c.LastError,
		"last_synced_at":              c.LastSyncedAt,
		"in_progress":                 c.InProgress,
		"in_progress_started_at":      c.InProgressStartedAt,
		"initial_sync_complete":       c.InitialSyncComplete,
		"last_recalc_checkpoint":      c.LastRecalcCheckpoint,
		"new_activities_since_recalc": c.NewActivitiesSinceRecalc,
		"first_batch_notified":        c.FirstBatchNotified,
	}
}

func firestoreToCursor(m map[string]interface{}) *cursorDoc {
	return &cursorDoc{SyncCursor{
		UserID:                   getString(m, "user_id"),
		OldestSyncedAt:           getTime(m, "oldest_synced_at"),
		NewestSyncedAt:           getTime(m, "newest_synced_at"),
		TotalActivitiesSynced:    int(getInt64(m, "total_activities_synced")),
		ActivitiesWithSplits:     int(getInt64(m, "activities_with_splits")),
		LastError:                getString(m, "last_error"),
		LastSyncedAt:             getTime(m, "last_synced_at"),
		InProgress:               getBool(m, "in_progress"),
		InProgressStartedAt:      getTime(m, "in_progress_started_at"),
		InitialSyncComplete:      getBool(m, "initial_sync_complete"),
		LastRecalcCheckpoint:     int(getInt64(m, "last_recalc_checkpoint")),
		NewActivitiesSinceRecalc: int(getInt64(m, "new_activities_since_recalc")),
		FirstBatchNotified:       getBool(m, "first_batch_notified"),
	}}
}

// --- hikingProfileDoc / runProfileDoc: users/{uid}/profiles/{hiking|running} ---

type hikingProfileDoc struct {
	profile.HikingProfile
}

func paceTableToFirestore(t profile.Table) map[string]interface{} {
	out := map[string]interface{}{}
	for cat, stats := range t {
		out[string(cat)] = map[string]interface{}{
			"avg_pace_min_per_km": stats.AvgPaceMinPerKm,
			"sample_count":        stats.SampleCount,
			"p25":                 stats.P25,
			"p50":                 stats.P50,
			"p75":                 stats.P75,
			"has_percentiles":     stats.HasPercentiles,
		}
	}
	return out
}

func paceTableFromFirestore(m map[string]interface{}) profile.Table {
	table := profile.Table{}
	for k, v := range m {
		bm, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		table[gradient.Category11(k)] = profile.CategoryStats{
			AvgPaceMinPerKm: getFloat(bm, "avg_pace_min_per_km"),
			SampleCount:     int(getInt64(bm, "sample_count")),
			P25:             getFloat(bm, "p25"),
			P50:             getFloat(bm, "p50"),
			P75:             getFloat(bm, "p75"),
			HasPercentiles:  getBool(bm, "has_percentiles"),
		}
	}
	return table
}

func hikingProfileToFirestore(p *hikingProfileDoc) map[string]interface{} {
	return map[string]interface{}{
		"user_id":            p.UserID,
		"paces":              paceTableToFirestore(p.Paces),
		"total_activities":   p.Aggregate.TotalActivitiesAnalysed,
		"total_distance_km":  p.Aggregate.TotalDistanceKm,
		"total_elevation_m":  p.Aggregate.TotalElevationM,
		"vertical_ability":   p.VerticalAbility,
		"last_calculated_at": p.LastCalculatedAt,
	}
}

func firestoreToHikingProfile(m map[string]interface{}) *hikingProfileDoc {
	paces, _ := m["paces"].(map[string]interface{})
	return &hikingProfileDoc{profile.HikingProfile{
		UserID: getString(m, "user_id"),
		Paces:  paceTableFromFirestore(paces),
		Aggregate: profile.Aggregate{
			TotalActivitiesAnalysed: int(getInt64(m, "total_activities")),
			TotalDistanceKm:         getFloat(m, "total_distance_km"),
			TotalElevationM:         getFloat(m, "total_elevation_m"),
		},
		VerticalAbility:  getFloat(m, "vertical_ability"),
		LastCalculatedAt: getTime(m, "last_calculated_at"),
	}}
}

type runProfileDoc struct {
	profile.RunProfile
}

func runProfileToFirestore(p *runProfileDoc) map[string]interface{} {
	return map[string]interface{}{
		"user_id":                p.UserID,
		"paces":                  paceTableToFirestore(p.Paces),
		"total_activities":       p.Aggregate.TotalActivitiesAnalysed,
		"total_distance_km":      p.Aggregate.TotalDistanceKm,
		"total_elevation_m":      p.Aggregate.TotalElevationM,
		"walk_threshold_percent": p.WalkThresholdPercent,
		"last_calculated_at":     p.LastCalculatedAt,
	}
}

func firestoreToRunProfile(m map[string]interface{}) *runProfileDoc {
	paces, _ := m["paces"].(map[string]interface{})
	return &runProfileDoc{profile.RunProfile{
		UserID: getString(m, "user_id"),
		Paces:  paceTableFromFirestore(paces),
		Aggregate: profile.Aggregate{
			TotalActivitiesAnalysed: int(getInt64(m, "total_activities")),
			TotalDistanceKm:         getFloat(m, "total_distance_km"),
			TotalElevationM:         getFloat(m, "total_elevation_m"),
		},
		WalkThresholdPercent: getFloat(m, "walk_threshold_percent"),
		LastCalculatedAt:     getTime(m, "last_calculated_at"),
	}}
}

// --- tokenDoc: users/{uid}/tokens/{provider} ---

type tokenDoc struct {
	oauth.StoredToken
}

func tokenToFirestore(t *tokenDoc) map[string]interface{} {
	return map[string]interface{}{
		"user_id":       t.UserID,
		"provider":      t.Provider,
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"expires_at":    t.ExpiresAt,
		"scope":         t.Scope,
	}
}

func firestoreToToken(m map[string]interface{}) *tokenDoc {
	return &tokenDoc{oauth.StoredToken{
		UserID:       getString(m, "user_id"),
		Provider:     getString(m, "provider"),
		AccessToken:  getString(m, "access_token"),
		RefreshToken: getString(m, "refresh_token"),
		ExpiresAt:    getTime(m, "expires_at"),
		Scope:        getString(m, "scope"),
	}}
}

// --- notificationDoc: users/{uid}/notifications/{id} ---

type notificationDoc struct {
	notify.Notification
}

func notificationToFirestore(n *notificationDoc) map[string]interface{} {
	data := map[string]interface{}{}
	for k, v := range n.Data {
		data[k] = v
	}
	return map[string]interface{}{
		"id":         n.ID,
		"user_id":    n.UserID,
		"kind":       string(n.Kind),
		"title":      n.Title,
		"body":       n.Body,
		"data":       data,
		"created_at": n.CreatedAt,
		"read":       n.Read,
	}
}

func firestoreToNotification(m map[string]interface{}) *notificationDoc {
	data := map[string]string{}
	if raw, ok := m["data"].(map[string]interface{}); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				data[k] = s
			}
		}
	}
	return &notificationDoc{notify.Notification{
		ID:        getString(m, "id"),
		UserID:    getString(m, "user_id"),
		Kind:      notify.Kind(getString(m, "kind")),
		Title:     getString(m, "title"),
		Body:      getString(m, "body"),
		Data:      data,
		CreatedAt: getTime(m, "created_at"),
		Read:      getBool(m, "read"),
	}}
}

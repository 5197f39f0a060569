package bootstrap

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/trailtime/core/pkg/fatigue"
	"github.com/trailtime/core/pkg/geo"
	"github.com/trailtime/core/pkg/gpxio"
	"github.com/trailtime/core/pkg/notify"
	"github.com/trailtime/core/pkg/oauth"
	"github.com/trailtime/core/pkg/pace"
	"github.com/trailtime/core/pkg/personalize"
	"github.com/trailtime/core/pkg/predict"
	"github.com/trailtime/core/pkg/segment"
	"github.com/trailtime/core/pkg/store"
	"github.com/trailtime/core/pkg/sync"
	"github.com/trailtime/core/pkg/threshold"
)

// This file is the inbound control surface the presentation layer calls
// (spec §6): predictions, sync triggers, profile rebuilds and the
// notification feed, all behind the one Service the entrypoints already
// hold.

// HikeOptions tunes a PredictHike call.
type HikeOptions struct {
	UserID      string // empty: no personalisation
	WithFatigue bool
}

// HikeResponse is a hiking prediction plus the warnings and per-segment
// breakdown the presentation layer renders.
type HikeResponse struct {
	Prediction predict.HikePrediction
	Segments   []segment.MacroSegment
	Warnings   []string
}

// ParseTrack turns raw GPX bytes (or a gs:// URI to them) into track
// points, rejecting empty files.
func (s *Service) ParseTrack(ctx context.Context, gpxData string) ([]geo.Point, error) {
	data, err := gpxio.Resolve(ctx, gpxData, s.BlobStore)
	if err != nil {
		return nil, err
	}
	return gpxio.Parse(data)
}

// PredictHike segments the track and runs the full hiking path,
// personalised from the user's stored HikingProfile when one is valid.
func (s *Service) PredictHike(ctx context.Context, points []geo.Point, opts HikeOptions) (*HikeResponse, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("predict: a track needs at least 2 points, got %d", len(points))
	}
	segments := segment.Segment(points)

	resp := &HikeResponse{Segments: segments}

	var personaliser *personalize.Personaliser
	if opts.UserID != "" {
		hp, err := s.Store.GetHikingProfile(ctx, opts.UserID)
		if err != nil {
			return nil, fmt.Errorf("predict: load hiking profile: %w", err)
		}
		if hp.Valid() {
			personaliser = personalize.New(hp.Paces)
		} else {
			resp.Warnings = append(resp.Warnings, "no usable hiking profile; using formula-based estimates only")
		}
	}

	var fatigueModel *fatigue.Model
	if opts.WithFatigue {
		m := fatigue.DefaultHiking()
		fatigueModel = &m
	}

	resp.Prediction = predict.PredictHike(segments, personaliser, fatigueModel)
	return resp, nil
}

// TrailRunOptions tunes a PredictTrailRun call. Zero values fall back
// to the profile's walk threshold (or the static default), the Strava
// GAP table, and a moderate effort.
type TrailRunOptions struct {
	UserID               string
	Variant              pace.GAPVariant
	BaseFlatPaceMinPerKm float64
	Effort               personalize.Effort
	UphillThresholdPct   float64 // 0: profile walk threshold, or the static default
	AdaptiveThreshold    bool
	WithFatigue          bool
}

// TrailRunResponse is a trail-running prediction plus warnings.
type TrailRunResponse struct {
	Prediction predict.TrailRunPrediction
	Segments   []segment.MacroSegment
	Warnings   []string
}

// PredictTrailRun segments the track and runs the full trail-running
// path, personalised from the user's stored RunProfile when one is
// valid; the profile's detected walk threshold feeds the run/hike
// decision unless the caller overrides it.
func (s *Service) PredictTrailRun(ctx context.Context, points []geo.Point, opts TrailRunOptions) (*TrailRunResponse, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("predict: a track needs at least 2 points, got %d", len(points))
	}
	segments := segment.Segment(points)

	resp := &TrailRunResponse{Segments: segments}

	cfg := predict.TrailRunConfig{
		Variant:              opts.Variant,
		BaseFlatPaceMinPerKm: opts.BaseFlatPaceMinPerKm,
		Effort:               opts.Effort,
		UphillThresholdPct:   opts.UphillThresholdPct,
		AdaptiveThreshold:    opts.AdaptiveThreshold,
	}

	if opts.UserID != "" {
		rp, err := s.Store.GetRunProfile(ctx, opts.UserID)
		if err != nil {
			return nil, fmt.Errorf("predict: load run profile: %w", err)
		}
		if rp.Valid() {
			cfg.Personaliser = personalize.New(rp.Paces)
			if cfg.UphillThresholdPct == 0 {
				cfg.UphillThresholdPct = rp.EffectiveWalkThreshold()
			}
		} else {
			resp.Warnings = append(resp.Warnings, "no usable run profile; using formula-based estimates only")
		}
	}
	if cfg.UphillThresholdPct == 0 {
		cfg.UphillThresholdPct = threshold.DefaultUphillThresholdPercent
	}

	if opts.WithFatigue {
		m := fatigue.DefaultRunning()
		cfg.Fatigue = &m
	}

	resp.Prediction = predict.PredictTrailRun(segments, cfg)
	return resp, nil
}

// ProviderOAuthConfig is the authorization-code-flow configuration for
// the connect flow, bound to the service's Strava client credentials.
func (s *Service) ProviderOAuthConfig(redirectURL string, scopes ...string) *oauth2.Config {
	endpoint := oauth.StravaEndpoint(s.Config.StravaClientID, s.Config.StravaClientSecret)
	return endpoint.OAuth2Config(redirectURL, scopes...)
}

// ConnectProvider completes a user's OAuth connect flow: exchange the
// authorization code, persist the token, mark the account connected,
// notify, and queue the first sync.
func (s *Service) ConnectProvider(ctx context.Context, userID string, cfg *oauth2.Config, code string) error {
	if _, err := oauth.ExchangeAuthorizationCode(ctx, s.Store, userID, "strava", cfg, code); err != nil {
		return err
	}

	u, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("connect: load user: %w", err)
	}
	if u == nil {
		u = &store.UserRecord{UserID: userID}
	}
	u.ProviderConnected = true
	if err := s.Store.UpsertUser(ctx, *u); err != nil {
		return fmt.Errorf("connect: mark user connected: %w", err)
	}

	if err := s.Notifier.CreateAndSend(ctx, notify.Notification{UserID: userID, Kind: notify.KindStravaConnected}); err != nil {
		s.Logger.Warn("connect: notification failed", "user_id", userID, "error", err)
	}

	s.Scheduler.Enqueue(userID)
	return nil
}

// EnqueueSync queues a background sync for the user.
func (s *Service) EnqueueSync(userID string) {
	s.Scheduler.Enqueue(userID)
}

// SyncNow runs one immediate sync pass for the user, bypassing the
// resync throttle the background scheduler honors.
func (s *Service) SyncNow(ctx context.Context, userID string) (sync.Result, error) {
	return s.Pipeline.SyncUser(ctx, userID, true)
}

// ProfileKind selects which profile RebuildProfile recomputes.
type ProfileKind string

const (
	ProfileHiking  ProfileKind = "hiking"
	ProfileRunning ProfileKind = "running"
)

// RebuildProfile recomputes one of the user's profiles from their
// stored activities, outside the sync pipeline's checkpoint schedule.
func (s *Service) RebuildProfile(ctx context.Context, userID string, kind ProfileKind) error {
	activities, err := s.Store.ListActivities(ctx, userID)
	if err != nil {
		return fmt.Errorf("rebuild profile: list activities: %w", err)
	}

	switch kind {
	case ProfileHiking:
		hp := s.Builder.RebuildHiking(userID, activities)
		if err := s.Store.UpsertHikingProfile(ctx, hp); err != nil {
			return fmt.Errorf("rebuild profile: upsert hiking: %w", err)
		}
	case ProfileRunning:
		rp := s.Builder.RebuildRunning(userID, activities)
		if err := s.Store.UpsertRunProfile(ctx, rp); err != nil {
			return fmt.Errorf("rebuild profile: upsert running: %w", err)
		}
	default:
		return fmt.Errorf("rebuild profile: unknown kind %q", kind)
	}
	return nil
}

// ListNotifications returns the user's notification feed, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notify.Notification, error) {
	return s.Store.ListNotifications(ctx, userID, unreadOnly, limit)
}

// MarkNotificationsRead marks a batch of the user's notifications read.
func (s *Service) MarkNotificationsRead(ctx context.Context, userID string, ids []string) error {
	return s.Store.MarkRead(ctx, userID, ids)
}

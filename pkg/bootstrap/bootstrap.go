// Package bootstrap wires every concrete dependency (Firestore,
// Pub/Sub, Cloud Storage, Sentry, the provider OAuth transport) into a
// running Service, the way the teacher's own pkg/bootstrap.NewService
// assembles its Service bundle for each Cloud Function entrypoint.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	stdsync "sync"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/notify"
	"github.com/trailtime/core/pkg/oauth"
	"github.com/trailtime/core/pkg/profile"
	"github.com/trailtime/core/pkg/provider"
	"github.com/trailtime/core/pkg/store"
	"github.com/trailtime/core/pkg/sync"
	"github.com/trailtime/core/pkg/telemetry"
)

// Config holds the environment-driven configuration recognised by the
// core (spec §6): database_url is realised as GOOGLE_CLOUD_PROJECT
// since the persistence layer is Firestore (see DESIGN.md Open
// Question decisions).
type Config struct {
	ProjectID          string
	StravaClientID     string
	StravaClientSecret string
	CrossServiceAPIKey string
	AydaRunAPIURL      string
	TelegramBotToken   string
	GCSArtifactBucket  string
}

// LoadConfig reads Config from the environment. Absent
// TelegramBotToken disables push silently; absent
// CrossServiceAPIKey/AydaRunAPIURL disables the cross-service resolver
// fallback (spec §6, §4.9).
func LoadConfig() *Config {
	return &Config{
		ProjectID:          os.Getenv("GOOGLE_CLOUD_PROJECT"),
		StravaClientID:     os.Getenv("strava_client_id"),
		StravaClientSecret: os.Getenv("strava_client_secret"),
		CrossServiceAPIKey: os.Getenv("cross_service_api_key"),
		AydaRunAPIURL:      os.Getenv("ayda_run_api_url"),
		TelegramBotToken:   os.Getenv("telegram_bot_token"),
		GCSArtifactBucket:  os.Getenv("GCS_ARTIFACT_BUCKET"),
	}
}

// Service bundles every initialized dependency a cmd/ entrypoint needs
// to run a sync pass or serve a prediction request.
type Service struct {
	Config    *Config
	Logger    *slog.Logger
	Store     store.Store
	BlobStore *store.GCSBlobStore
	Builder   *profile.ProfileBuilder
	Notifier  *notify.Bus
	Pipeline  *sync.Pipeline
	Scheduler *sync.Scheduler

	fsClient *firestore.Client
	psClient *pubsub.Client
	gcs      *storage.Client
}

// Close releases every network client the Service opened.
func (s *Service) Close() error {
	var firstErr error
	if s.fsClient != nil {
		if err := s.fsClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.psClient != nil {
		if err := s.psClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.gcs != nil {
		if err := s.gcs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// userChannelResolver adapts store.Store's per-user account row into
// notify.ChannelResolver without notify importing store (store already
// imports notify for Notification's shape, so the dependency can only
// run one way).
type userChannelResolver struct {
	store store.Store
}

func (r userChannelResolver) ChannelFor(ctx context.Context, userID string) (string, bool) {
	u, err := r.store.GetUser(ctx, userID)
	if err != nil || u == nil || u.TelegramChatID == "" {
		return "", false
	}
	return u.TelegramChatID, true
}

// providerName identifies the OAuth provider every user-scoped
// TokenSource in this service is built against.
const providerName = "strava"

// NewTokenSource builds the proactive-refresh token source for one
// user, bound to the service's Strava OAuth endpoint. When the user
// has no local token and the cross-service resolver is configured,
// the resolver is consulted before the source gives up (spec §4.9).
func (s *Service) NewTokenSource(userID string) oauth.TokenSource {
	endpoint := oauth.StravaEndpoint(s.Config.StravaClientID, s.Config.StravaClientSecret)
	ts := oauth.NewVaultTokenSource(s.Store, userID, providerName, endpoint)
	if resolver := s.CrossServiceResolver(); resolver != nil {
		ts.Resolver = resolver
	}
	return ts
}

// NewProviderClient builds a rate-limited, circuit-broken provider
// client authenticated for one user, chaining oauth.Transport in front
// of the shared HTTP transport (spec §4.9).
func (s *Service) NewProviderClient(userID string) *provider.Client {
	httpClient := oauth.NewClient(s.NewTokenSource(userID), 30*time.Second)
	return provider.New(httpClient, "https://www.strava.com")
}

// CrossServiceResolver builds the optional cross-service token
// resolver, or nil when AydaRunAPIURL/CrossServiceAPIKey are unset.
func (s *Service) CrossServiceResolver() *provider.CrossServiceResolver {
	if s.Config.AydaRunAPIURL == "" || s.Config.CrossServiceAPIKey == "" {
		return nil
	}
	return provider.NewCrossServiceResolver(s.Config.AydaRunAPIURL, s.Config.CrossServiceAPIKey)
}

// multiUserProvider satisfies sync.ProviderClient by lazily building and
// caching one provider.Client per user — each user's OAuth transport is
// bound to that user's own token, but Pipeline is constructed once and
// serves every user the Scheduler hands it.
type multiUserProvider struct {
	svc *Service

	mu      stdsync.Mutex
	clients map[string]*provider.Client
}

func newMultiUserProvider(svc *Service) *multiUserProvider {
	return &multiUserProvider{svc: svc, clients: map[string]*provider.Client{}}
}

func (p *multiUserProvider) clientFor(userID string) *provider.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[userID]
	if !ok {
		c = p.svc.NewProviderClient(userID)
		p.clients[userID] = c
	}
	return c
}

func (p *multiUserProvider) ListActivities(ctx context.Context, userID string, afterEpoch int64, limit int) ([]activity.Activity, error) {
	return p.clientFor(userID).ListActivities(ctx, userID, afterEpoch, limit)
}

func (p *multiUserProvider) FetchActivityDetail(ctx context.Context, userID string, providerActivityID int64) (*activity.Activity, error) {
	return p.clientFor(userID).FetchActivityDetail(ctx, userID, providerActivityID)
}

// NewService initializes every dependency: structured logging, Sentry,
// Firestore, Pub/Sub, Cloud Storage, the notification bus and the sync
// pipeline + scheduler, mirroring the teacher's bootstrap.NewService.
func NewService(ctx context.Context) (*Service, error) {
	cfg := LoadConfig()
	logger := telemetry.NewLogger("trailtime-core")
	slog.SetDefault(logger)

	if err := telemetry.InitSentry(telemetry.SentryConfigFromEnv(), logger); err != nil {
		logger.Warn("sentry initialization failed", "error", err)
	}

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: firestore init: %w", err)
	}
	st := store.NewFirestoreStore(store.NewFirestoreClient(fsClient))

	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: pubsub init: %w", err)
	}
	eventSink := sync.NewPubSubEventSink(psClient, sync.EventsTopicID)

	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: storage init: %w", err)
	}
	blobStore := store.NewGCSBlobStore(gcsClient)

	var pushAdapter notify.PushAdapter
	if cfg.TelegramBotToken != "" {
		pushAdapter = notify.NewTelegramAdapter(cfg.TelegramBotToken)
	} else {
		logger.Warn("telegram_bot_token not configured, push notifications disabled")
		pushAdapter = noopPushAdapter{}
	}
	notifier := notify.New(st, userChannelResolver{st}, pushAdapter, logger.With("component", "notify"))

	builder := &profile.ProfileBuilder{}

	svc := &Service{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		BlobStore: blobStore,
		Builder:   builder,
		Notifier:  notifier,
		fsClient:  fsClient,
		psClient:  psClient,
		gcs:       gcsClient,
	}

	pipeline := &sync.Pipeline{
		Store:     st,
		Provider:  newMultiUserProvider(svc),
		Builder:   builder,
		Notifier:  notifier,
		EventSink: eventSink,
		Logger:    logger.With("component", "sync"),
	}
	svc.Pipeline = pipeline
	svc.Scheduler = sync.NewScheduler(pipeline, st, logger.With("component", "scheduler"))

	return svc, nil
}

// noopPushAdapter discards every push, used when no Telegram bot token
// is configured; the stored Notification row remains the durable record.
type noopPushAdapter struct{}

func (noopPushAdapter) Send(context.Context, notify.Notification, string) error { return nil }

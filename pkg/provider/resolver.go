package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// CrossServiceResolverTimeout bounds the cross-service token lookup
// call (spec §4.8/§6: 10s timeout on the resolver's HTTP client).
const CrossServiceResolverTimeout = 10 * time.Second

// CrossServiceCacheTTL is how long a resolved token is cached before
// the resolver is queried again. A negative lookup (the other service
// has no token for this user) is never cached, so a user who just
// connected is picked up on the very next sync attempt.
const CrossServiceCacheTTL = 30 * time.Minute

type cachedToken struct {
	accessToken string
	fetchedAt   time.Time
}

// CrossServiceResolver looks up a user's already-obtained provider
// token from another service (ayda_run_api_url) instead of running its
// own OAuth flow, used when this service is a secondary consumer of an
// existing integration. Lookups go through a plain http.Client bounded
// by CrossServiceResolverTimeout.
type CrossServiceResolver struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu    sync.Mutex
	cache map[string]cachedToken
}

// NewCrossServiceResolver builds a resolver bound to ayda_run_api_url
// and cross_service_api_key.
func NewCrossServiceResolver(baseURL, apiKey string) *CrossServiceResolver {
	return &CrossServiceResolver{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: CrossServiceResolverTimeout},
		cache:   map[string]cachedToken{},
	}
}

// Resolve returns the user's access token as known by the other
// service, or ok=false if that service has no token for this user.
func (r *CrossServiceResolver) Resolve(ctx context.Context, userID string) (accessToken string, ok bool, err error) {
	r.mu.Lock()
	if cached, found := r.cache[userID]; found && time.Since(cached.fetchedAt) < CrossServiceCacheTTL {
		r.mu.Unlock()
		return cached.accessToken, true, nil
	}
	r.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/internal/tokens/%s", r.baseURL, userID), nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("X-Api-Key", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("provider: cross-service resolver request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("provider: cross-service resolver returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", false, fmt.Errorf("provider: decode cross-service response: %w", err)
	}

	r.mu.Lock()
	r.cache[userID] = cachedToken{accessToken: payload.AccessToken, fetchedAt: time.Now()}
	r.mu.Unlock()

	return payload.AccessToken, true, nil
}

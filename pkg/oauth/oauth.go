// Package oauth manages the external provider's OAuth token lifecycle:
// storage, proactive refresh ahead of expiry, and the reactive 401-retry
// HTTP transport chain (spec §4.9, §6).
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// StoredToken is the persisted shape of one user's provider token.
type StoredToken struct {
	UserID       string
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// RefreshMargin is how far ahead of expiry a token is proactively
// refreshed (spec REFRESH_MARGIN=300s).
const RefreshMargin = 300 * time.Second

// TokenVault is the minimal persistence surface TokenSource needs; a
// store.TokenStore satisfies it.
type TokenVault interface {
	GetToken(ctx context.Context, userID string) (*StoredToken, error)
	UpsertToken(ctx context.Context, userID string, tok StoredToken) error
}

// CrossServiceLookup resolves a user's access token from another
// service that already completed the OAuth flow, for a deployment
// where this service is a secondary consumer of an existing
// integration (spec §4.9: "if no local token exists, ask a sibling
// service before giving up"). pkg/provider.CrossServiceResolver
// satisfies this.
type CrossServiceLookup interface {
	Resolve(ctx context.Context, userID string) (accessToken string, ok bool, err error)
}

// Token is the access/refresh pair handed to callers.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenSource returns a valid token, refreshing proactively or on
// demand. Safe for concurrent use.
type TokenSource interface {
	Token(ctx context.Context) (*Token, error)
	ForceRefresh(ctx context.Context) (*Token, error)
}

// ProviderEndpoint names the token refresh URL and auth style for one
// external provider.
type ProviderEndpoint struct {
	TokenURL      string
	ClientID      string
	ClientSecret  string
	UseBasicAuth  bool // client creds go in the Authorization header rather than the body
	AcceptJSONHdr bool
}

// StravaEndpoint builds the provider endpoint from the service's
// strava_client_id/strava_client_secret configuration.
func StravaEndpoint(clientID, clientSecret string) ProviderEndpoint {
	return ProviderEndpoint{
		TokenURL:     "https://www.strava.com/oauth/token",
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
}

// VaultTokenSource reads from a TokenVault and refreshes the upstream
// token when it is expired or within RefreshMargin of expiry. When the
// vault holds no usable token it asks Resolver (if set) and otherwise
// returns an error.
type VaultTokenSource struct {
	vault    TokenVault
	userID   string
	provider string
	endpoint ProviderEndpoint
	client   *http.Client

	// Resolver is consulted only when the vault has no usable token for
	// this user; it never overrides a token this service already owns.
	Resolver CrossServiceLookup

	mu sync.Mutex
}

// NewVaultTokenSource builds a TokenSource for one user/provider pair.
func NewVaultTokenSource(vault TokenVault, userID, provider string, endpoint ProviderEndpoint) *VaultTokenSource {
	return &VaultTokenSource{vault: vault, userID: userID, provider: provider, endpoint: endpoint, client: http.DefaultClient}
}

// Token returns the current token, proactively refreshing within
// RefreshMargin of expiry.
func (s *VaultTokenSource) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.vault.GetToken(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("oauth: get token: %w", err)
	}
	if stored == nil || stored.AccessToken == "" || stored.RefreshToken == "" {
		if tok, ok, resolveErr := s.resolveCrossService(ctx); resolveErr != nil {
			return nil, resolveErr
		} else if ok {
			return tok, nil
		}
		return nil, fmt.Errorf("oauth: no token on file for user %s provider %s", s.userID, s.provider)
	}

	if !stored.ExpiresAt.IsZero() && time.Now().Add(RefreshMargin).After(stored.ExpiresAt) {
		return s.refresh(ctx, stored.RefreshToken)
	}

	return &Token{AccessToken: stored.AccessToken, RefreshToken: stored.RefreshToken, Expiry: stored.ExpiresAt}, nil
}

// resolveCrossService asks Resolver (when configured) for a token this
// service never obtained locally. A resolved token has no refresh
// token of its own: the sibling service owns the refresh cycle, so
// ForceRefresh on such a user simply asks Resolver again.
func (s *VaultTokenSource) resolveCrossService(ctx context.Context) (*Token, bool, error) {
	if s.Resolver == nil {
		return nil, false, nil
	}
	accessToken, ok, err := s.Resolver.Resolve(ctx, s.userID)
	if err != nil {
		return nil, false, fmt.Errorf("oauth: cross-service resolve: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Token{AccessToken: accessToken}, true, nil
}

// ForceRefresh unconditionally refreshes, used after a reactive 401.
func (s *VaultTokenSource) ForceRefresh(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.vault.GetToken(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("oauth: get token: %w", err)
	}
	if stored == nil || stored.RefreshToken == "" {
		if tok, ok, resolveErr := s.resolveCrossService(ctx); resolveErr != nil {
			return nil, resolveErr
		} else if ok {
			return tok, nil
		}
		return nil, fmt.Errorf("oauth: no refresh token on file for user %s provider %s", s.userID, s.provider)
	}
	return s.refresh(ctx, stored.RefreshToken)
}

func (s *VaultTokenSource) refresh(ctx context.Context, refreshToken string) (*Token, error) {
	data := url.Values{}
	if !s.endpoint.UseBasicAuth {
		data.Set("client_id", s.endpoint.ClientID)
		data.Set("client_secret", s.endpoint.ClientSecret)
	}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.endpoint.UseBasicAuth {
		req.SetBasicAuth(s.endpoint.ClientID, s.endpoint.ClientSecret)
	}
	if s.endpoint.AcceptJSONHdr {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth: refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth: refresh failed with status %d", resp.StatusCode)
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		ExpiresAt    int64  `json:"expires_at"`
		Scope        string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("oauth: decode refresh response: %w", err)
	}

	expiry := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if result.ExpiresAt != 0 {
		expiry = time.Unix(result.ExpiresAt, 0)
	}

	newToken := StoredToken{
		UserID: s.userID, Provider: s.provider,
		AccessToken: result.AccessToken, RefreshToken: result.RefreshToken, ExpiresAt: expiry,
		Scope: result.Scope,
	}
	if err := s.vault.UpsertToken(ctx, s.userID, newToken); err != nil {
		return nil, fmt.Errorf("oauth: persist refreshed token: %w", err)
	}

	return &Token{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken, Expiry: expiry}, nil
}

// Transport is an http.RoundTripper that authenticates every request
// with Source, retrying once with a forced refresh on a 401.
type Transport struct {
	Source TokenSource
	Base   http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	ctx := req.Context()
	token, err := t.Source.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth: cannot get token: %w", err)
	}

	req2 := cloneRequest(req)
	req2.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := base.RoundTrip(req2)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		slog.Warn("got 401, forcing token refresh", "url", req.URL.String())

		token, err = t.Source.ForceRefresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("oauth: force refresh failed: %w", err)
		}
		req2.Header.Set("Authorization", "Bearer "+token.AccessToken)
		return base.RoundTrip(req2)
	}

	return resp, nil
}

func cloneRequest(r *http.Request) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.Header = make(http.Header, len(r.Header))
	for k, v := range r.Header {
		r2.Header[k] = append([]string(nil), v...)
	}
	return r2
}

// MaxErrorBodySize has the same value as shared.MaxErrorBodySize, the
// cap shared.ParseErrorResponse applies to error response bodies; this
// package itself does not read it.
const MaxErrorBodySize = 500

// NewClient builds the provider HTTP client stack: Client → OAuth →
// Network, matching the teacher's RoundTripper-chaining shape.
func NewClient(source TokenSource, timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &Transport{Source: source},
	}
}

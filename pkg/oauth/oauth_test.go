package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVault struct {
	mu     sync.Mutex
	tokens map[string]StoredToken
}

func newFakeVault(initial StoredToken) *fakeVault {
	return &fakeVault{tokens: map[string]StoredToken{initial.UserID: initial}}
}

func (f *fakeVault) GetToken(_ context.Context, userID string) (*StoredToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[userID]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (f *fakeVault) UpsertToken(_ context.Context, userID string, tok StoredToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[userID] = tok
	return nil
}

func refreshServer(t *testing.T, accessToken string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"refresh_token": "new-refresh",
			"expires_in":    3600,
		})
	}))
}

func TestTokenReturnsStoredWhenFresh(t *testing.T) {
	vault := newFakeVault(StoredToken{
		UserID: "u1", AccessToken: "tok-1", RefreshToken: "r1", ExpiresAt: time.Now().Add(1 * time.Hour),
	})
	src := NewVaultTokenSource(vault, "u1", "strava", ProviderEndpoint{})
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken)
}

func TestTokenProactivelyRefreshesWithinMargin(t *testing.T) {
	srv := refreshServer(t, "fresh-token")
	defer srv.Close()

	vault := newFakeVault(StoredToken{
		UserID: "u1", AccessToken: "stale", RefreshToken: "r1", ExpiresAt: time.Now().Add(100 * time.Second),
	})
	src := NewVaultTokenSource(vault, "u1", "strava", ProviderEndpoint{TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret"})

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok.AccessToken)

	stored, _ := vault.GetToken(context.Background(), "u1")
	assert.Equal(t, "fresh-token", stored.AccessToken)
}

func TestForceRefreshIgnoresExpiry(t *testing.T) {
	srv := refreshServer(t, "forced-token")
	defer srv.Close()

	vault := newFakeVault(StoredToken{
		UserID: "u1", AccessToken: "tok", RefreshToken: "r1", ExpiresAt: time.Now().Add(1 * time.Hour),
	})
	src := NewVaultTokenSource(vault, "u1", "strava", ProviderEndpoint{TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret"})

	tok, err := src.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "forced-token", tok.AccessToken)
}

func TestTransportRetriesOnceAfter401(t *testing.T) {
	attempts := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		auth := r.Header.Get("Authorization")
		if auth == "Bearer stale-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	refresh := refreshServer(t, "new-access")
	defer refresh.Close()

	vault := newFakeVault(StoredToken{
		UserID: "u1", AccessToken: "stale-access", RefreshToken: "r1", ExpiresAt: time.Now().Add(1 * time.Hour),
	})
	src := NewVaultTokenSource(vault, "u1", "strava", ProviderEndpoint{TokenURL: refresh.URL, ClientID: "id", ClientSecret: "secret"})
	client := NewClient(src, 5*time.Second)

	req, _ := http.NewRequest(http.MethodGet, upstream.URL, nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, attempts)
}

func TestTokenErrorsWhenNothingStored(t *testing.T) {
	vault := newFakeVault(StoredToken{UserID: "other"})
	src := NewVaultTokenSource(vault, "missing-user", "strava", ProviderEndpoint{})
	_, err := src.Token(context.Background())
	assert.Error(t, err)
}

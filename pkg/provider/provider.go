// Package provider implements the external activity provider client:
// rate-limited, circuit-broken HTTP access to the Strava-shaped API,
// plus the cross-service token resolver used when another service
// already holds the user's OAuth token (spec §4.8, §6, §7).
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/trailtime/core/pkg/activity"
	"github.com/trailtime/core/pkg/shared"
)

// ErrUnauthorized / ErrRateLimited / ErrServerError are the provider
// error kinds callers branch on (spec §7).
var (
	ErrUnauthorized = fmt.Errorf("provider: unauthorized")
	ErrRateLimited  = fmt.Errorf("provider: rate limited")
	ErrServerError  = fmt.Errorf("provider: server error")
)

// classifyStatus maps an HTTP status to one of the three provider error
// kinds, wrapping the underlying HTTPError for detail.
func classifyStatus(httpErr error) error {
	var e *shared.HTTPError
	if !asHTTPError(httpErr, &e) {
		return httpErr
	}
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, e.Error())
	case e.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, e.Error())
	case e.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrServerError, e.Error())
	default:
		return httpErr
	}
}

func asHTTPError(err error, target **shared.HTTPError) bool {
	he, ok := err.(*shared.HTTPError)
	if !ok {
		return false
	}
	*target = he
	return true
}

// RateLimiter enforces the provider's dual rate limit (spec: 200
// requests / 15 minutes and 2000 requests / 24 hours).
type RateLimiter struct {
	short *rate.Limiter
	daily *rate.Limiter
}

// NewRateLimiter builds the dual-window limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		short: rate.NewLimiter(rate.Every(15*time.Minute/200), 200),
		daily: rate.NewLimiter(rate.Every(24*time.Hour/2000), 2000),
	}
}

// Wait blocks until both windows admit another request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.short.Wait(ctx); err != nil {
		return err
	}
	return r.daily.Wait(ctx)
}

// APICallDelay is the fixed courtesy delay between paginated list calls
// (spec API_CALL_DELAY=1.5s).
const APICallDelay = 1500 * time.Millisecond

// Client is the rate-limited, circuit-broken provider HTTP client.
type Client struct {
	http    *http.Client
	baseURL string
	limiter *RateLimiter
	breaker *gobreaker.CircuitBreaker
	sleep   func(time.Duration) // overridable in tests
}

// New builds a Client. httpClient should already carry the OAuth
// transport chain (see pkg/oauth).
func New(httpClient *http.Client, baseURL string) *Client {
	settings := gobreaker.Settings{
		Name:        "strava",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		limiter: NewRateLimiter(),
		breaker: gobreaker.NewCircuitBreaker(settings),
		sleep:   time.Sleep,
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, out interface{}) error {
	err := c.doJSONOnce(ctx, method, path, out)
	if err == nil || !isRateLimited(err) {
		return err
	}
	// The provider's window is quarter-hour aligned; sleep until it
	// rolls over and retry exactly once (spec §7.3).
	c.sleep(untilNextWindow(time.Now()))
	return c.doJSONOnce(ctx, method, path, out)
}

func isRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// untilNextWindow returns the wait until the next 15-minute boundary.
func untilNextWindow(now time.Time) time.Duration {
	window := 15 * time.Minute
	return now.Truncate(window).Add(window).Sub(now)
}

func (c *Client) doJSONOnce(ctx context.Context, method, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("provider: rate limiter wait: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if httpErr := shared.ParseErrorResponse(resp); httpErr != nil {
			return nil, classifyStatus(httpErr)
		}

		var body json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("provider: decode response: %w", err)
		}
		return body, nil
	})
	if err != nil {
		return err
	}

	raw, _ := result.(json.RawMessage)
	return json.Unmarshal(raw, out)
}

// summaryActivity is the provider's list-response shape.
type summaryActivity struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	Type                string  `json:"type"`
	StartDate           string  `json:"start_date"`
	DistanceM           float64 `json:"distance"`
	MovingTimeS         int     `json:"moving_time"`
	ElapsedTimeS        int     `json:"elapsed_time"`
	TotalElevationGainM float64 `json:"total_elevation_gain"`
	AverageSpeedMps     float64 `json:"average_speed"`
	MaxSpeedMps         float64 `json:"max_speed"`
	AverageHeartrate    float64 `json:"average_heartrate"`
	MaxHeartrate        float64 `json:"max_heartrate"`
}

func (s summaryActivity) toActivity(userID string) activity.Activity {
	startTime, _ := time.Parse(time.RFC3339, s.StartDate)
	return activity.Activity{
		ProviderActivityID: s.ID,
		UserID:             userID,
		Name:               s.Name,
		Type:               activity.Type(s.Type),
		StartTime:          startTime,
		DistanceM:          s.DistanceM,
		MovingTimeS:        s.MovingTimeS,
		ElapsedTimeS:       s.ElapsedTimeS,
		ElevationGainM:     s.TotalElevationGainM,
		AverageSpeedMps:    s.AverageSpeedMps,
		MaxSpeedMps:        s.MaxSpeedMps,
		AverageHeartrate:   s.AverageHeartrate,
		MaxHeartrate:       s.MaxHeartrate,
	}
}

// pageSize is the default per-page activity count when the caller sets
// no limit; maxPageSize is the provider's hard per_page cap (spec §6).
const (
	pageSize    = 50
	maxPageSize = 200
)

// ListActivities fetches activities after afterEpoch, oldest first.
// With limit > 0 it requests exactly one page of that size — the sync
// pipeline's batch semantics. With limit <= 0 it paginates until a
// short page signals the end, inserting APICallDelay between pages to
// stay a polite distance inside the rate limit.
func (c *Client) ListActivities(ctx context.Context, userID string, afterEpoch int64, limit int) ([]activity.Activity, error) {
	if limit > 0 {
		perPage := limit
		if perPage > maxPageSize {
			perPage = maxPageSize
		}
		var raw []summaryActivity
		path := fmt.Sprintf("/api/v3/athlete/activities?after=%d&per_page=%d&page=1", afterEpoch, perPage)
		if err := c.doJSON(ctx, http.MethodGet, path, &raw); err != nil {
			return nil, fmt.Errorf("provider: list activities: %w", err)
		}
		out := make([]activity.Activity, 0, len(raw))
		for _, s := range raw {
			out = append(out, s.toActivity(userID))
		}
		return out, nil
	}

	var all []activity.Activity
	page := 1

	for {
		var raw []summaryActivity
		path := fmt.Sprintf("/api/v3/athlete/activities?after=%d&per_page=%d&page=%d", afterEpoch, pageSize, page)
		if err := c.doJSON(ctx, http.MethodGet, path, &raw); err != nil {
			return nil, fmt.Errorf("provider: list activities page %d: %w", page, err)
		}

		for _, s := range raw {
			all = append(all, s.toActivity(userID))
		}

		if len(raw) < pageSize {
			break
		}
		page++
		c.sleep(APICallDelay)
	}

	return all, nil
}

// detailActivity is the provider's single-activity response shape,
// including per-km splits.
type detailActivity struct {
	summaryActivity
	SplitsMetric []struct {
		Split       int     `json:"split"`
		DistanceM   float64 `json:"distance"`
		MovingTimeS int     `json:"moving_time"`
		ElevDiffM   float64 `json:"elevation_difference"`
	} `json:"splits_metric"`
}

// FetchActivityDetail fetches one activity including its splits.
func (c *Client) FetchActivityDetail(ctx context.Context, userID string, providerActivityID int64) (*activity.Activity, error) {
	var raw detailActivity
	path := fmt.Sprintf("/api/v3/activities/%d", providerActivityID)
	if err := c.doJSON(ctx, http.MethodGet, path, &raw); err != nil {
		return nil, fmt.Errorf("provider: fetch activity %d: %w", providerActivityID, err)
	}

	a := raw.summaryActivity.toActivity(userID)
	a.Splits = make([]activity.Split, 0, len(raw.SplitsMetric))
	for _, s := range raw.SplitsMetric {
		a.Splits = append(a.Splits, activity.Split{
			Ordinal: s.Split, DistanceM: s.DistanceM, MovingTimeS: s.MovingTimeS, ElevDiffM: s.ElevDiffM,
		})
	}
	a.SplitsSynced = true
	return &a, nil
}

// Deauthorize revokes the stored token on the provider's side.
func (c *Client) Deauthorize(ctx context.Context) error {
	var discard json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/oauth/deauthorize", &discard); err != nil {
		return fmt.Errorf("provider: deauthorize: %w", err)
	}
	return nil
}

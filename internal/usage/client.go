package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the ChatGPT backend that serves the usage endpoint.
const DefaultBaseURL = "https://chatgpt.com/backend-api"

const usagePath = "/wham/usage"

// UnavailableError indicates the provider could not be reached or returned a
// non-success response.
type UnavailableError struct {
	Status int
	Body   string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("usage request failed: %v", e.Err)
	}
	return fmt.Sprintf("usage request failed: status %d: %s", e.Status, e.Body)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Client fetches rate-limit data from the provider's usage endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a usage client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// rawWindow is the wire shape of one rate-limit window. Pointer fields
// distinguish absent from zero.
type rawWindow struct {
	UsedPercent        *float64 `json:"used_percent"`
	LimitWindowSeconds *float64 `json:"limit_window_seconds"`
	ResetAt            *int64   `json:"reset_at"`
}

type rawRateLimit struct {
	PrimaryWindow   *rawWindow `json:"primary_window"`
	SecondaryWindow *rawWindow `json:"secondary_window"`
}

type rawCredits struct {
	HasCredits bool    `json:"has_credits"`
	Unlimited  bool    `json:"unlimited"`
	Balance    *string `json:"balance"`
}

type rawUsagePayload struct {
	PlanType  *string       `json:"plan_type"`
	RateLimit *rawRateLimit `json:"rate_limit"`
	Credits   *rawCredits   `json:"credits"`
}

// FetchLimits calls the usage endpoint with the given credentials and returns
// the normalized snapshot.
func (c *Client) FetchLimits(ctx context.Context, accessToken, accountID string) (*RateLimitSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+usagePath, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("ChatGPT-Account-Id", accountID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &UnavailableError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload rawUsagePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &UnavailableError{Err: fmt.Errorf("decode usage payload: %w", err)}
	}

	return mapSnapshot(&payload), nil
}

func mapSnapshot(payload *rawUsagePayload) *RateLimitSnapshot {
	snapshot := &RateLimitSnapshot{PlanType: payload.PlanType}
	if payload.RateLimit != nil {
		snapshot.Primary = mapWindow(payload.RateLimit.PrimaryWindow)
		snapshot.Secondary = mapWindow(payload.RateLimit.SecondaryWindow)
	}
	if payload.Credits != nil {
		snapshot.Credits = &CreditsSnapshot{
			HasCredits: payload.Credits.HasCredits,
			Unlimited:  payload.Credits.Unlimited,
			Balance:    payload.Credits.Balance,
		}
	}
	return snapshot
}

// mapWindow normalizes one wire window. The window duration arrives in
// seconds and is rounded up to whole minutes; zero or missing durations map
// to nil so the window is excluded from aggregation.
func mapWindow(raw *rawWindow) *RateLimitWindow {
	if raw == nil {
		return nil
	}
	w := &RateLimitWindow{}
	if raw.UsedPercent != nil {
		w.UsedPercent = *raw.UsedPercent
	}
	if raw.LimitWindowSeconds != nil && *raw.LimitWindowSeconds > 0 {
		minutes := int((int64(*raw.LimitWindowSeconds) + 59) / 60)
		w.WindowMinutes = &minutes
	}
	if raw.ResetAt != nil {
		resetsAt := *raw.ResetAt
		w.ResetsAt = &resetsAt
	}
	return w
}

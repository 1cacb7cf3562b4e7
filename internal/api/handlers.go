package api

import (
	"context"
	"fmt"
	"time"

	"github.com/codexmux/codexmux/internal/activate"
	"github.com/codexmux/codexmux/internal/db"
	"github.com/codexmux/codexmux/internal/refresh"
	"github.com/codexmux/codexmux/internal/store"
	"github.com/codexmux/codexmux/internal/usage"
)

// Handlers provides the business logic behind the API endpoints.
type Handlers struct {
	store     *store.Store
	refresher *refresh.Refresher
	activator *activate.Activator
	usage     *usage.Client
	history   *db.DB
}

// NewHandlers creates a Handlers instance. history may be nil when the
// history database is unavailable.
func NewHandlers(st *store.Store, refresher *refresh.Refresher, activator *activate.Activator, usageClient *usage.Client, history *db.DB) *Handlers {
	return &Handlers{
		store:     st,
		refresher: refresher,
		activator: activator,
		usage:     usageClient,
		history:   history,
	}
}

// Event is one server-sent event.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// CurrentResponse is the response for GET /auth/current.
type CurrentResponse struct {
	ID *string `json:"id"`
}

// ActivateResponse is the response for POST /auth/activate/{id}.
type ActivateResponse struct {
	ID string `json:"id"`
}

// HistoryEntry is one refresh attempt in GET /auth/{id}/history.
type HistoryEntry struct {
	AttemptedAt string `json:"attemptedAt"`
	Outcome     string `json:"outcome"`
	Detail      string `json:"detail,omitempty"`
}

// HistoryResponse is the response for GET /auth/{id}/history.
type HistoryResponse struct {
	ID       string         `json:"id"`
	Attempts []HistoryEntry `json:"attempts"`
}

// List returns summaries for all stored profiles. Unparsable records are
// dropped rather than failing the listing.
func (h *Handlers) List() []store.Summary {
	return h.store.List()
}

// Refresh rotates the tokens of one profile and returns the new summary.
func (h *Handlers) Refresh(ctx context.Context, id string) (store.Summary, error) {
	return h.refresher.Refresh(ctx, id)
}

// Current reports the active profile id, nil when none is set.
func (h *Handlers) Current() CurrentResponse {
	id := h.activator.CurrentProfileID()
	if id == "" {
		return CurrentResponse{}
	}
	return CurrentResponse{ID: &id}
}

// Activate designates the given profile as active.
func (h *Handlers) Activate(id string) (ActivateResponse, error) {
	if err := h.activator.Activate(id); err != nil {
		return ActivateResponse{}, err
	}
	return ActivateResponse{ID: id}, nil
}

// Limits fetches and normalizes the provider's usage data for one profile.
func (h *Handlers) Limits(ctx context.Context, id string) (*usage.RateLimitSnapshot, error) {
	auth, err := h.store.Load(id)
	if err != nil {
		return nil, err
	}
	creds, err := usage.CredentialsFor(id, auth)
	if err != nil {
		return nil, err
	}
	snapshot, err := h.usage.FetchLimits(ctx, creds.AccessToken, creds.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rate limits for '%s': %w", id, err)
	}
	return snapshot, nil
}

// History lists recent refresh attempts for one profile.
func (h *Handlers) History(id string) (HistoryResponse, error) {
	resp := HistoryResponse{ID: id, Attempts: []HistoryEntry{}}
	if h.history == nil {
		return resp, nil
	}
	events, err := h.history.ListRefreshes(id, 50)
	if err != nil {
		return resp, err
	}
	for _, ev := range events {
		resp.Attempts = append(resp.Attempts, HistoryEntry{
			AttemptedAt: ev.AttemptedAt.Format(time.RFC3339),
			Outcome:     ev.Outcome,
			Detail:      ev.Detail,
		})
	}
	return resp, nil
}

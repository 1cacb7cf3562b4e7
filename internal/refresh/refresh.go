package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/codexmux/codexmux/internal/store"
)

const (
	// ClientID identifies this application to the provider's token endpoint.
	ClientID = "app_EMoamEEZ73f0CkXaXp7hrann"

	// DefaultTokenURL is the provider's token endpoint.
	DefaultTokenURL = "https://auth.openai.com/oauth/token"

	refreshScope = "openid profile email"
)

// ErrMissingRefreshToken indicates the profile has no stored refresh token.
var ErrMissingRefreshToken = errors.New("no refresh_token present in auth file")

// badRequestHint is appended when a network-level failure looks like the
// provider rejecting the request outright.
const badRequestHint = " The stored refresh token is likely invalid or expired. Please re-authenticate and generate a fresh auth file for this id."

// History records refresh attempts for later inspection. Recording is
// best-effort; errors are logged and dropped.
type History interface {
	RecordRefresh(profileID string, attemptedAt time.Time, outcome, detail string) error
}

// Refresher executes the refresh-token grant for stored profiles and writes
// the rotated tokens back through the store.
type Refresher struct {
	store      *store.Store
	tokenURL   string
	httpClient *http.Client
	audit      *Audit
	history    History
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options configures a Refresher. Zero values select defaults; Audit and
// History may be nil to disable those side channels.
type Options struct {
	TokenURL string
	Audit    *Audit
	History  History
	Logger   *slog.Logger
}

// New creates a Refresher over the given store.
func New(st *store.Store, opts Options) *Refresher {
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Refresher{
		store:      st,
		tokenURL:   opts.TokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		audit:      opts.Audit,
		history:    opts.History,
		logger:     opts.Logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing refreshes of one profile id. Two
// in-flight refreshes of the same id would race to overwrite the stored
// refresh token and lose a valid rotation.
func (r *Refresher) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

type grantRequest struct {
	ClientID     string `json:"client_id"`
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

type grantResponse struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh loads the profile, exchanges its refresh token for new tokens,
// merges the response into the stored record and returns the updated summary.
func (r *Refresher) Refresh(ctx context.Context, id string) (store.Summary, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	outcome, detail := "error", ""
	attemptedAt := time.Now().UTC()
	defer func() {
		if r.history == nil {
			return
		}
		if err := r.history.RecordRefresh(id, attemptedAt, outcome, detail); err != nil {
			r.logger.Debug("history record failed", "id", id, "error", err)
		}
	}()

	auth, err := r.store.Load(id)
	if err != nil {
		detail = err.Error()
		return store.Summary{}, err
	}

	if auth.Tokens == nil || auth.Tokens.RefreshToken == "" {
		detail = "missing refresh token"
		return store.Summary{}, fmt.Errorf("%w for id '%s'", ErrMissingRefreshToken, id)
	}
	refreshToken := auth.Tokens.RefreshToken

	body, err := json.Marshal(grantRequest{
		ClientID:     ClientID,
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
		Scope:        refreshScope,
	})
	if err != nil {
		detail = err.Error()
		return store.Summary{}, fmt.Errorf("encode grant request for id '%s': %w", id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, bytes.NewReader(body))
	if err != nil {
		detail = err.Error()
		return store.Summary{}, fmt.Errorf("create grant request for id '%s': %w", id, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		auditError(r.audit, id, err.Error())
		unavailable := &UnavailableError{Err: err}
		if strings.Contains(err.Error(), "400 Bad Request") {
			unavailable.Hint = badRequestHint
		}
		detail = unavailable.Error()
		return store.Summary{}, fmt.Errorf("failed to refresh token for '%s': %w", id, unavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		raw, _ := io.ReadAll(resp.Body)
		auditError(r.audit, id, string(raw))
		rejected := ClassifyFailure(string(raw))
		outcome, detail = "rejected:"+string(rejected.Reason), rejected.Message
		return store.Summary{}, rejected
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		auditError(r.audit, id, string(raw))
		unavailable := &UnavailableError{Status: resp.StatusCode, Body: string(raw)}
		detail = unavailable.Error()
		return store.Summary{}, fmt.Errorf("failed to refresh token for '%s': %w", id, unavailable)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		auditError(r.audit, id, err.Error())
		detail = err.Error()
		return store.Summary{}, fmt.Errorf("failed to refresh token for '%s': %w", id, &UnavailableError{Err: err})
	}

	var refreshed grantResponse
	if err := json.Unmarshal(raw, &refreshed); err != nil {
		auditError(r.audit, id, err.Error())
		detail = err.Error()
		return store.Summary{}, fmt.Errorf("failed to decode refreshed token payload for '%s': %w", id, &UnavailableError{Err: err})
	}
	r.audit.Record(id, json.RawMessage(raw))

	// Merge: response fields replace stored ones only when present, and the
	// stored account id always survives the rotation.
	updated := *auth.Tokens
	if refreshed.IDToken != "" {
		updated.IDToken = refreshed.IDToken
	}
	if refreshed.AccessToken != "" {
		updated.AccessToken = refreshed.AccessToken
	}
	if refreshed.RefreshToken != "" {
		updated.RefreshToken = refreshed.RefreshToken
	}
	auth.Tokens = &updated
	auth.LastRefresh = time.Now().UTC().Format(time.RFC3339)

	if err := r.store.Persist(id, auth); err != nil {
		detail = err.Error()
		return store.Summary{}, err
	}

	outcome, detail = "ok", ""
	r.logger.Info("refreshed auth file", "id", id)
	return store.Summarize(id, auth), nil
}

package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/codexmux/codexmux/internal/store"
)

type recordedAttempt struct {
	profileID string
	outcome   string
	detail    string
}

type fakeHistory struct {
	mu       sync.Mutex
	attempts []recordedAttempt
}

func (f *fakeHistory) RecordRefresh(profileID string, attemptedAt time.Time, outcome, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, recordedAttempt{profileID, outcome, detail})
	return nil
}

func (f *fakeHistory) last(t *testing.T) recordedAttempt {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.attempts) == 0 {
		t.Fatal("no history attempts recorded")
	}
	return f.attempts[len(f.attempts)-1]
}

func seedProfile(t *testing.T, st *store.Store, id string, tokens *store.TokenData) {
	t.Helper()
	if err := st.Persist(id, &store.AuthFile{Tokens: tokens}); err != nil {
		t.Fatalf("seed profile %s: %v", id, err)
	}
}

// auditFiles returns the audit payload files recorded for one profile.
func auditFiles(t *testing.T, auditDir, id string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(auditDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read audit dir: %v", err)
	}
	return entries
}

func TestRefreshRotatesTokens(t *testing.T) {
	var gotGrant grantRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotGrant); err != nil {
			t.Errorf("decode grant request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id_token":      "i2",
			"access_token":  "a2",
			"refresh_token": "r2",
		})
	}))
	defer srv.Close()

	st := store.New(t.TempDir())
	seedProfile(t, st, "work", &store.TokenData{
		IDToken: "i1", AccessToken: "a1", RefreshToken: "r1", AccountID: "acct-1",
	})
	auditDir := t.TempDir()
	history := &fakeHistory{}
	r := New(st, Options{TokenURL: srv.URL, Audit: NewAudit(auditDir), History: history})

	summary, err := r.Refresh(context.Background(), "work")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if summary.ID != "work" {
		t.Errorf("summary id = %q", summary.ID)
	}

	if gotGrant.ClientID != ClientID {
		t.Errorf("client_id = %q, want %q", gotGrant.ClientID, ClientID)
	}
	if gotGrant.GrantType != "refresh_token" {
		t.Errorf("grant_type = %q", gotGrant.GrantType)
	}
	if gotGrant.RefreshToken != "r1" {
		t.Errorf("refresh_token = %q, want r1", gotGrant.RefreshToken)
	}
	if gotGrant.Scope != "openid profile email" {
		t.Errorf("scope = %q", gotGrant.Scope)
	}

	auth, err := st.Load("work")
	if err != nil {
		t.Fatal(err)
	}
	if auth.Tokens.IDToken != "i2" || auth.Tokens.AccessToken != "a2" || auth.Tokens.RefreshToken != "r2" {
		t.Errorf("tokens not rotated: %+v", auth.Tokens)
	}
	if auth.Tokens.AccountID != "acct-1" {
		t.Errorf("account id lost on rotation: %q", auth.Tokens.AccountID)
	}
	if _, err := time.Parse(time.RFC3339, auth.LastRefresh); err != nil {
		t.Errorf("last_refresh %q not RFC3339: %v", auth.LastRefresh, err)
	}

	if got := auditFiles(t, auditDir, "work"); len(got) != 1 {
		t.Errorf("audit files = %d, want 1", len(got))
	}
	if att := history.last(t); att.outcome != "ok" || att.detail != "" {
		t.Errorf("history attempt = %+v, want ok", att)
	}
}

func TestRefreshPartialResponseKeepsStoredFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only the access token comes back; the rest must survive.
		json.NewEncoder(w).Encode(map[string]string{"access_token": "a2"})
	}))
	defer srv.Close()

	st := store.New(t.TempDir())
	seedProfile(t, st, "work", &store.TokenData{IDToken: "i1", AccessToken: "a1", RefreshToken: "r1"})
	r := New(st, Options{TokenURL: srv.URL})

	if _, err := r.Refresh(context.Background(), "work"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	auth, _ := st.Load("work")
	if auth.Tokens.IDToken != "i1" || auth.Tokens.AccessToken != "a2" || auth.Tokens.RefreshToken != "r1" {
		t.Errorf("merge wrong: %+v", auth.Tokens)
	}
}

func TestRefreshRejectedTokenClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"refresh_token_reused"}}`))
	}))
	defer srv.Close()

	st := store.New(t.TempDir())
	seedProfile(t, st, "work", &store.TokenData{IDToken: "i1", AccessToken: "a1", RefreshToken: "r1"})
	auditDir := t.TempDir()
	history := &fakeHistory{}
	r := New(st, Options{TokenURL: srv.URL, Audit: NewAudit(auditDir), History: history})

	_, err := r.Refresh(context.Background(), "work")
	var rejected *TokenRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want TokenRejectedError", err)
	}
	if rejected.Reason != ReasonExhausted {
		t.Errorf("reason = %q, want exhausted", rejected.Reason)
	}

	// Stored record is untouched on rejection.
	auth, _ := st.Load("work")
	if auth.Tokens.RefreshToken != "r1" {
		t.Errorf("stored refresh token mutated: %q", auth.Tokens.RefreshToken)
	}

	if got := auditFiles(t, auditDir, "work"); len(got) != 1 {
		t.Errorf("audit files = %d, want 1", len(got))
	}
	if att := history.last(t); att.outcome != "rejected:exhausted" {
		t.Errorf("history outcome = %q, want rejected:exhausted", att.outcome)
	}
}

func TestRefreshServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	st := store.New(t.TempDir())
	seedProfile(t, st, "work", &store.TokenData{RefreshToken: "r1"})
	r := New(st, Options{TokenURL: srv.URL})

	_, err := r.Refresh(context.Background(), "work")
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error = %v, want UnavailableError", err)
	}
	if unavailable.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", unavailable.Status)
	}
}

func TestRefreshMalformedSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	st := store.New(t.TempDir())
	seedProfile(t, st, "work", &store.TokenData{RefreshToken: "r1"})
	r := New(st, Options{TokenURL: srv.URL})

	_, err := r.Refresh(context.Background(), "work")
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error = %v, want UnavailableError", err)
	}
}

func TestRefreshMissingRefreshToken(t *testing.T) {
	st := store.New(t.TempDir())
	seedProfile(t, st, "keyed", &store.TokenData{AccessToken: "a1"})
	history := &fakeHistory{}
	r := New(st, Options{TokenURL: "http://unreachable.invalid", History: history})

	_, err := r.Refresh(context.Background(), "keyed")
	if !errors.Is(err, ErrMissingRefreshToken) {
		t.Fatalf("error = %v, want ErrMissingRefreshToken", err)
	}
	if att := history.last(t); att.outcome != "error" || att.detail != "missing refresh token" {
		t.Errorf("history attempt = %+v", att)
	}
}

func TestRefreshUnknownProfile(t *testing.T) {
	st := store.New(t.TempDir())
	r := New(st, Options{TokenURL: "http://unreachable.invalid"})

	_, err := r.Refresh(context.Background(), "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want store.ErrNotFound", err)
	}
}

func TestRefreshSerializesPerProfile(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"refresh_token": "rotated"})
	}))
	defer srv.Close()

	st := store.New(t.TempDir())
	seedProfile(t, st, "work", &store.TokenData{RefreshToken: "r1"})
	r := New(st, Options{TokenURL: srv.URL})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Refresh(context.Background(), "work"); err != nil {
				t.Errorf("Refresh: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent grants for one profile = %d, want 1", maxSeen)
	}
}

func TestAuditRecordIsBestEffort(t *testing.T) {
	// A nil audit and an unwritable directory both no-op.
	var a *Audit
	a.Record("id", map[string]string{"k": "v"})

	NewAudit("").Record("id", "payload")
	NewAudit("/dev/null/nope").Record("id", "payload")
}

func TestAuditRecordWritesPayload(t *testing.T) {
	dir := t.TempDir()
	a := NewAudit(dir)
	a.Record("work", map[string]string{"hello": "world"})

	entries := auditFiles(t, dir, "work")
	if len(entries) != 1 {
		t.Fatalf("audit files = %d, want 1", len(entries))
	}
	raw, err := os.ReadFile(filepath.Join(dir, "work", entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("audit file not json: %v", err)
	}
	if got["hello"] != "world" {
		t.Errorf("audit payload = %v", got)
	}
}

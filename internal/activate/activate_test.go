package activate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/codexmux/codexmux/internal/store"
)

func newTestActivator(t *testing.T) (*Activator, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(dir)
	return New(st), st, dir
}

func seed(t *testing.T, st *store.Store, id, accessToken string) {
	t.Helper()
	err := st.Persist(id, &store.AuthFile{
		Tokens: &store.TokenData{AccessToken: accessToken, RefreshToken: "r"},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestActivateSnapshotsRecord(t *testing.T) {
	a, st, dir := newTestActivator(t)
	seed(t, st, "work", "a1")

	if err := a.Activate("work"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	source, _ := os.ReadFile(st.Path("work"))
	current, err := os.ReadFile(filepath.Join(dir, "auth.json"))
	if err != nil {
		t.Fatalf("read auth.json: %v", err)
	}
	if string(current) != string(source) {
		t.Error("auth.json does not match the activated record")
	}
	if got := a.CurrentProfileID(); got != "work" {
		t.Errorf("CurrentProfileID = %q, want work", got)
	}
}

func TestActivateIsIdempotent(t *testing.T) {
	a, st, _ := newTestActivator(t)
	seed(t, st, "work", "a1")

	for i := 0; i < 2; i++ {
		if err := a.Activate("work"); err != nil {
			t.Fatalf("Activate #%d: %v", i+1, err)
		}
	}
	if got := a.CurrentProfileID(); got != "work" {
		t.Errorf("CurrentProfileID = %q", got)
	}
}

func TestActivateSwitchesProfiles(t *testing.T) {
	a, st, dir := newTestActivator(t)
	seed(t, st, "work", "a-work")
	seed(t, st, "personal", "a-personal")

	if err := a.Activate("work"); err != nil {
		t.Fatal(err)
	}
	if err := a.Activate("personal"); err != nil {
		t.Fatal(err)
	}

	current, _ := os.ReadFile(filepath.Join(dir, "auth.json"))
	source, _ := os.ReadFile(st.Path("personal"))
	if string(current) != string(source) {
		t.Error("auth.json does not match the newly activated record")
	}
	if got := a.CurrentProfileID(); got != "personal" {
		t.Errorf("CurrentProfileID = %q, want personal", got)
	}
}

func TestActivateUnknownProfile(t *testing.T) {
	a, _, _ := newTestActivator(t)

	err := a.Activate("ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want store.ErrNotFound", err)
	}
}

func TestActivateSentinelClearsCredentials(t *testing.T) {
	a, st, dir := newTestActivator(t)
	seed(t, st, "work", "a1")

	if err := a.Activate("work"); err != nil {
		t.Fatal(err)
	}
	if err := a.Activate(Sentinel); err != nil {
		t.Fatalf("Activate sentinel: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "auth.json")); !os.IsNotExist(err) {
		t.Error("auth.json still present after sentinel activation")
	}
	if got := a.CurrentProfileID(); got != Sentinel {
		t.Errorf("CurrentProfileID = %q, want %q", got, Sentinel)
	}

	// The stored record itself survives.
	if _, err := st.Load("work"); err != nil {
		t.Errorf("stored record lost: %v", err)
	}
}

func TestActivateSentinelWithoutPriorActivation(t *testing.T) {
	a, _, _ := newTestActivator(t)
	if err := a.Activate(Sentinel); err != nil {
		t.Fatalf("Activate sentinel on empty dir: %v", err)
	}
}

func TestCurrentProfileIDUnset(t *testing.T) {
	a, _, _ := newTestActivator(t)
	if got := a.CurrentProfileID(); got != "" {
		t.Errorf("CurrentProfileID = %q, want empty", got)
	}
}

func TestActivateLaterRotationDoesNotMutateSnapshot(t *testing.T) {
	a, st, dir := newTestActivator(t)
	seed(t, st, "work", "a1")

	if err := a.Activate("work"); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(filepath.Join(dir, "auth.json"))

	// Persisting new tokens replaces the record but not the snapshot.
	seed(t, st, "work", "a2")

	after, _ := os.ReadFile(filepath.Join(dir, "auth.json"))
	if string(before) != string(after) {
		t.Error("auth.json changed without a new activation")
	}
}

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProfileIDFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/creds/work.auth.json", "work"},
		{"/creds/my-profile.auth.json", "my-profile"},
		{"/creds/auth.json", ""},
		{"/creds/current.tmp", ""},
		{"/creds/.work.auth.json.tmp-123", ""},
		{"/creds/notes.txt", ""},
	}
	for _, tt := range tests {
		if got := profileIDFor(tt.path); got != tt.want {
			t.Errorf("profileIDFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestShouldEmitDebounces(t *testing.T) {
	w := &Watcher{delay: 50 * time.Millisecond, lastSeen: make(map[string]time.Time)}

	if !w.shouldEmit("work") {
		t.Fatal("first event suppressed")
	}
	if w.shouldEmit("work") {
		t.Fatal("burst event not suppressed")
	}
	// A different profile is debounced independently.
	if !w.shouldEmit("personal") {
		t.Fatal("unrelated profile suppressed")
	}

	time.Sleep(60 * time.Millisecond)
	if !w.shouldEmit("work") {
		t.Fatal("event after debounce window suppressed")
	}
}

func TestShouldEmitPrunesStaleEntries(t *testing.T) {
	w := &Watcher{delay: 10 * time.Millisecond, lastSeen: map[string]time.Time{
		"old": time.Now().Add(-2 * time.Minute),
	}}

	w.shouldEmit("fresh")
	if _, ok := w.lastSeen["old"]; ok {
		t.Error("stale entry not pruned")
	}
}

func TestWatcherEmitsOnRecordWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "work.auth.json"), []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		if ev.ProfileID != "work" {
			t.Errorf("ProfileID = %q, want work", ev.ProfileID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event for record write")
	}
}

func TestWatcherIgnoresNonRecords(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "current.tmp"), []byte("work"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherClosesEventsOnCancel(t *testing.T) {
	w, err := New(t.TempDir(), 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	cancel()

	select {
	case _, ok := <-w.Events():
		if ok {
			t.Fatal("got event instead of close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}

func TestNewMissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent"), 0, nil); err == nil {
		t.Fatal("New succeeded on a missing directory")
	}
}

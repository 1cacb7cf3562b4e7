// Package watcher observes the credentials directory and reports which
// profile records changed, debouncing editor/rename bursts.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const recordSuffix = ".auth.json"

// Event reports a change to one profile's stored record.
type Event struct {
	// ProfileID is the id derived from the changed record's filename.
	ProfileID string

	// Op describes the filesystem operation ("create", "write", "remove", ...).
	Op string
}

// Watcher emits debounced change events for auth records in one directory.
type Watcher struct {
	dir      string
	delay    time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	events   chan Event
	lastSeen map[string]time.Time
	mu       sync.Mutex
}

// New creates a watcher over dir. Events are debounced per profile id with
// the given delay (a non-positive delay selects 500ms).
func New(dir string, delay time.Duration, logger *slog.Logger) (*Watcher, error) {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		delay:    delay,
		logger:   logger,
		fsw:      fsw,
		events:   make(chan Event, 16),
		lastSeen: make(map[string]time.Time),
	}, nil
}

// Events returns the debounced event stream. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run pumps filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			id := profileIDFor(ev.Name)
			if id == "" || !w.shouldEmit(id) {
				continue
			}
			out := Event{ProfileID: id, Op: opString(ev.Op)}
			select {
			case w.events <- out:
			default:
				w.logger.Debug("watcher event dropped", "id", id)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// shouldEmit debounces per profile id and prunes stale entries as it goes.
func (w *Watcher) shouldEmit(id string) bool {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	for key, ts := range w.lastSeen {
		if now.Sub(ts) > time.Minute {
			delete(w.lastSeen, key)
		}
	}

	if last, ok := w.lastSeen[id]; ok && now.Sub(last) < w.delay {
		return false
	}
	w.lastSeen[id] = now
	return true
}

// profileIDFor maps a changed path to a profile id, or "" for paths that are
// not auth records (temp files, the marker, the current-credentials file).
func profileIDFor(path string) string {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordSuffix) {
		return ""
	}
	return strings.TrimSuffix(name, recordSuffix)
}

func opString(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return op.String()
	}
}

// Package activate designates one stored profile as the active one by
// snapshotting its record into the well-known current-credentials path and
// recording its id in a marker file.
package activate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codexmux/codexmux/internal/store"
)

// Sentinel is the reserved id meaning "no specific profile": the alternate
// credential backend is in use and no stored record backs the current
// credentials.
const Sentinel = "azure"

const (
	currentFileName = "auth.json"
	markerFileName  = "current.tmp"
)

// ErrActivationFailed indicates the current-credentials snapshot could not be
// established.
var ErrActivationFailed = errors.New("failed to activate profile")

// Activator swaps the active-profile designation. At most one profile is
// active at a time.
type Activator struct {
	store *store.Store
}

// New creates an activator over the given store.
func New(st *store.Store) *Activator {
	return &Activator{store: st}
}

func (a *Activator) currentPath() string {
	return filepath.Join(a.store.Dir(), currentFileName)
}

func (a *Activator) markerPath() string {
	return filepath.Join(a.store.Dir(), markerFileName)
}

// Activate makes the given profile the active one. Activating the sentinel id
// clears the current credentials instead. The operation is idempotent:
// activating the same id twice yields the same state and no error.
func (a *Activator) Activate(id string) error {
	if err := os.MkdirAll(a.store.Dir(), 0700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	if id == Sentinel {
		if err := removeIfExists(a.currentPath()); err != nil {
			return fmt.Errorf("%w '%s': %v", ErrActivationFailed, id, err)
		}
		return a.writeMarker(id)
	}

	// Existence check only; a corrupt record can still be activated, the
	// consumer of the current credentials decides what to do with it.
	source := a.store.Path(id)
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("%w for id '%s'", store.ErrNotFound, id)
	}

	if err := removeIfExists(a.currentPath()); err != nil {
		return fmt.Errorf("%w '%s': %v", ErrActivationFailed, id, err)
	}

	// Snapshot the record's current content rather than hard-linking it.
	// The store replaces records wholesale on every persist, so the copy
	// matches the profile's state at the moment of activation and later
	// rotations go through activation again rather than mutating this file.
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("%w '%s': %v", ErrActivationFailed, id, err)
	}
	if err := writeFileAtomic(a.currentPath(), data); err != nil {
		return fmt.Errorf("%w '%s': %v", ErrActivationFailed, id, err)
	}

	return a.writeMarker(id)
}

// CurrentProfileID reads the marker file and returns the active profile id,
// or "" when no profile has been activated. It never fails.
func (a *Activator) CurrentProfileID() string {
	raw, err := os.ReadFile(a.markerPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func (a *Activator) writeMarker(id string) error {
	if err := os.WriteFile(a.markerPath(), []byte(id), 0600); err != nil {
		return fmt.Errorf("write active-profile marker for '%s': %w", id, err)
	}
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

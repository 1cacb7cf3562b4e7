// Package store reads and writes auth profile records from the credentials
// directory. One record per profile id, persisted as <id>.auth.json.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const recordSuffix = ".auth.json"

var (
	// ErrNotFound indicates no record exists for the requested id.
	ErrNotFound = errors.New("auth file not found")

	// ErrParse indicates a record exists but is not valid JSON.
	ErrParse = errors.New("auth file is not valid JSON")
)

// TokenData is the stored OAuth token set for a profile. A profile either has
// no token set or a complete one; account_id is optional.
type TokenData struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccountID    string `json:"account_id,omitempty"`
}

// AuthFile is one stored profile record.
type AuthFile struct {
	OpenAIAPIKey string     `json:"OPENAI_API_KEY,omitempty"`
	Tokens       *TokenData `json:"tokens,omitempty"`
	LastRefresh  string     `json:"last_refresh,omitempty"`
}

// Store manages profile records under a single credentials directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the credentials directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the record path for a profile id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+recordSuffix)
}

// Load reads and parses the record for id.
func (s *Store) Load(id string) (*AuthFile, error) {
	raw, err := os.ReadFile(s.Path(id))
	if err != nil {
		return nil, fmt.Errorf("%w for id '%s'", ErrNotFound, id)
	}

	var auth AuthFile
	if err := json.Unmarshal(raw, &auth); err != nil {
		return nil, fmt.Errorf("%w for id '%s': %v", ErrParse, id, err)
	}
	return &auth, nil
}

// Persist writes the full record for id, replacing any prior content. The
// write goes through a temp file and rename so a concurrent reader never
// observes a partial record.
func (s *Store) Persist(id string, auth *AuthFile) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return fmt.Errorf("encode auth file for id '%s': %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+recordSuffix+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp auth file for id '%s': %w", id, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write auth file for id '%s': %w", id, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod auth file for id '%s': %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close auth file for id '%s': %w", id, err)
	}
	if err := os.Rename(tmpPath, s.Path(id)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace auth file for id '%s': %w", id, err)
	}
	return nil
}

// List enumerates all stored records and returns a summary per valid entry.
// Records that fail to parse are skipped; List itself never fails, a missing
// directory yields an empty list.
func (s *Store) List() []Summary {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return []Summary{}
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, recordSuffix)

		auth, err := s.Load(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, Summarize(id, auth))
	}
	return summaries
}

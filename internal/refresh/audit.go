package refresh

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Audit writes the raw payload of every refresh attempt to a per-profile,
// append-only directory. It is a fire-and-forget side channel: failures are
// swallowed and never affect the refresh itself.
type Audit struct {
	dir string
}

// NewAudit creates an audit trail rooted at dir.
func NewAudit(dir string) *Audit {
	return &Audit{dir: dir}
}

// Record persists one attempt's payload under <dir>/<id>/<timestamp>-<uuid>.json.
// The uuid suffix keeps same-second attempts from colliding.
func (a *Audit) Record(id string, payload any) {
	if a == nil || a.dir == "" {
		return
	}

	targetDir := filepath.Join(a.dir, id)
	if err := os.MkdirAll(targetDir, 0700); err != nil {
		return
	}

	timestamp := strings.NewReplacer(":", "-", ".", "-").Replace(
		time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	name := timestamp + "-" + uuid.NewString()[:8] + ".json"

	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		body = []byte(`{"error":"unencodable payload"}`)
	}
	_ = os.WriteFile(filepath.Join(targetDir, name), body, 0600)
}

// errorPayload is the audit shape for failed attempts.
type errorPayload struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func auditError(a *Audit, id, detail string) {
	a.Record(id, errorPayload{Type: "refresh-error", Error: detail})
}

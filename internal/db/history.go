package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// RefreshEvent is one recorded refresh attempt for a profile.
type RefreshEvent struct {
	ID          int64
	ProfileID   string
	AttemptedAt time.Time
	Outcome     string
	Detail      string
}

// RecordRefresh inserts a refresh attempt. It keeps full history; rows are
// never updated in place.
func (d *DB) RecordRefresh(profileID string, attemptedAt time.Time, outcome, detail string) error {
	if d == nil || d.conn == nil {
		return fmt.Errorf("db is not open")
	}

	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return fmt.Errorf("profile id is required")
	}
	if outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if attemptedAt.IsZero() {
		attemptedAt = time.Now().UTC()
	}

	var detailStr sql.NullString
	if detail != "" {
		detailStr = sql.NullString{String: detail, Valid: true}
	}

	_, err := d.conn.Exec(
		`INSERT INTO refresh_events (profile_id, attempted_at, outcome, detail) VALUES (?, ?, ?, ?)`,
		profileID,
		formatSQLiteTime(attemptedAt),
		outcome,
		detailStr,
	)
	if err != nil {
		return fmt.Errorf("insert refresh_events: %w", err)
	}
	return nil
}

// ListRefreshes returns the most recent refresh attempts for a profile,
// newest first, up to limit rows.
func (d *DB) ListRefreshes(profileID string, limit int) ([]RefreshEvent, error) {
	if d == nil || d.conn == nil {
		return nil, fmt.Errorf("db is not open")
	}

	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, fmt.Errorf("profile id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.conn.Query(
		`SELECT id, profile_id, attempted_at, outcome, detail
		   FROM refresh_events
		  WHERE profile_id = ?
		  ORDER BY datetime(attempted_at) DESC, id DESC
		  LIMIT ?`,
		profileID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query refresh_events: %w", err)
	}
	defer rows.Close()

	var out []RefreshEvent
	for rows.Next() {
		var (
			ev          RefreshEvent
			attemptedAt string
			detail      sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.ProfileID, &attemptedAt, &ev.Outcome, &detail); err != nil {
			return nil, fmt.Errorf("scan refresh_events: %w", err)
		}
		at, err := parseSQLiteTime(attemptedAt)
		if err != nil {
			return nil, fmt.Errorf("parse attempted_at %q: %w", attemptedAt, err)
		}
		ev.AttemptedAt = at
		if detail.Valid {
			ev.Detail = detail.String
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh_events: %w", err)
	}
	return out, nil
}

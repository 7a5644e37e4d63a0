package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/htbwatch/htb-relay/app/feed"
)

var _ MarkerRepository = (*SQLMarkerRepository)(nil)

// SQLMarkerRepository persists per-feed poll markers.
type SQLMarkerRepository struct {
	db *DB
}

func NewMarkerRepository(db *DB) *SQLMarkerRepository {
	return &SQLMarkerRepository{db: db}
}

// GetMarker returns the feed's poll marker, or nil on first run.
func (r *SQLMarkerRepository) GetMarker(kind feed.Kind) (*Marker, error) {
	var m Marker
	err := r.db.QueryRow(`
		SELECT last_poll_at, cursor
		FROM feed_markers
		WHERE kind = ?
	`, string(kind)).Scan(&m.LastPollAt, &m.Cursor)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed marker: %w", err)
	}

	return &m, nil
}

// SetMarker advances the feed's poll marker. The marker only moves forward;
// a stale write from an aborted cycle is ignored.
func (r *SQLMarkerRepository) SetMarker(kind feed.Kind, marker Marker) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO feed_markers (kind, last_poll_at, cursor, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind) DO UPDATE SET
			last_poll_at = excluded.last_poll_at,
			cursor = excluded.cursor,
			updated_at = excluded.updated_at
		WHERE excluded.last_poll_at >= feed_markers.last_poll_at
	`, string(kind), marker.LastPollAt.UTC(), marker.Cursor, now)

	if err != nil {
		return fmt.Errorf("failed to set feed marker: %w", err)
	}

	return nil
}

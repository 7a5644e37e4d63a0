package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/htbwatch/htb-relay/app/feed"
)

var _ DeliveryRepository = (*SQLDeliveryRepository)(nil)

// SQLDeliveryRepository persists delivery progress. Every write is a single
// upsert statement, so a status change and its timestamp commit atomically.
type SQLDeliveryRepository struct {
	db *DB
}

func NewDeliveryRepository(db *DB) *SQLDeliveryRepository {
	return &SQLDeliveryRepository{db: db}
}

// GetDeliveryStatus returns the per-channel status map for one item key.
// Channels never attempted are absent from the map.
func (r *SQLDeliveryRepository) GetDeliveryStatus(kind feed.Kind, itemKey string) (map[feed.ChannelKind]feed.Status, error) {
	rows, err := r.db.Query(`
		SELECT channel_kind, status
		FROM deliveries
		WHERE kind = ? AND item_key = ?
	`, string(kind), itemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery status: %w", err)
	}
	defer rows.Close()

	status := make(map[feed.ChannelKind]feed.Status)
	for rows.Next() {
		var channel, st string
		if err := rows.Scan(&channel, &st); err != nil {
			return nil, fmt.Errorf("failed to scan delivery status row: %w", err)
		}
		status[feed.ChannelKind(channel)] = feed.Status(st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery status rows: %w", err)
	}

	return status, nil
}

func (r *SQLDeliveryRepository) GetDelivery(kind feed.Kind, itemKey string, channel feed.ChannelKind) (*Delivery, error) {
	var d Delivery
	var k, ch, st string
	err := r.db.QueryRow(`
		SELECT kind, item_key, channel_kind, status, external_ref,
		       attempts, last_error, last_attempt_at, created_at, updated_at
		FROM deliveries
		WHERE kind = ? AND item_key = ? AND channel_kind = ?
	`, string(kind), itemKey, string(channel)).Scan(
		&k, &d.ItemKey, &ch, &st, &d.ExternalRef,
		&d.Attempts, &d.LastError, &d.LastAttemptAt, &d.CreatedAt, &d.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}

	d.Kind = feed.Kind(k)
	d.ChannelKind = feed.ChannelKind(ch)
	d.Status = feed.Status(st)
	return &d, nil
}

// MarkDelivered records a successful step. Sent is terminal: the row keeps
// its external reference and is never moved back to pending.
func (r *SQLDeliveryRepository) MarkDelivered(kind feed.Kind, itemKey string, channel feed.ChannelKind, externalRef string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO deliveries (kind, item_key, channel_kind, status, external_ref, attempts, last_error, last_attempt_at, updated_at)
		VALUES (?, ?, ?, 'sent', ?, 1, '', ?, ?)
		ON CONFLICT (kind, item_key, channel_kind) DO UPDATE SET
			status = 'sent',
			external_ref = excluded.external_ref,
			attempts = deliveries.attempts + 1,
			last_error = '',
			last_attempt_at = excluded.last_attempt_at,
			updated_at = excluded.updated_at
		WHERE deliveries.status != 'sent'
	`, string(kind), itemKey, string(channel), externalRef, now, now)

	if err != nil {
		return fmt.Errorf("failed to mark delivery sent: %w", err)
	}

	return nil
}

// MarkFailed records a failed step and increments the attempt counter. A
// row already sent is left untouched.
func (r *SQLDeliveryRepository) MarkFailed(kind feed.Kind, itemKey string, channel feed.ChannelKind, cause error) error {
	now := time.Now().UTC()
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	_, err := r.db.Exec(`
		INSERT INTO deliveries (kind, item_key, channel_kind, status, attempts, last_error, last_attempt_at, updated_at)
		VALUES (?, ?, ?, 'failed', 1, ?, ?, ?)
		ON CONFLICT (kind, item_key, channel_kind) DO UPDATE SET
			status = 'failed',
			attempts = deliveries.attempts + 1,
			last_error = excluded.last_error,
			last_attempt_at = excluded.last_attempt_at,
			updated_at = excluded.updated_at
		WHERE deliveries.status != 'sent'
	`, string(kind), itemKey, string(channel), message, now, now)

	if err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}

	return nil
}

// IsFullyDelivered reports whether every required channel kind reached sent.
func (r *SQLDeliveryRepository) IsFullyDelivered(kind feed.Kind, itemKey string, required []feed.ChannelKind) (bool, error) {
	status, err := r.GetDeliveryStatus(kind, itemKey)
	if err != nil {
		return false, err
	}

	for _, channel := range required {
		if status[channel] != feed.StatusSent {
			return false, nil
		}
	}

	return true, nil
}

// GetStuck returns failed deliveries at or past the attempt threshold, for
// the operator surface. The rows stay in the ledger untouched.
func (r *SQLDeliveryRepository) GetStuck(maxAttempts int) ([]Delivery, error) {
	rows, err := r.db.Query(`
		SELECT kind, item_key, channel_kind, status, external_ref,
		       attempts, last_error, last_attempt_at, created_at, updated_at
		FROM deliveries
		WHERE status = 'failed' AND attempts >= ?
		ORDER BY updated_at DESC
	`, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to get stuck deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		var k, ch, st string
		if err := rows.Scan(&k, &d.ItemKey, &ch, &st, &d.ExternalRef,
			&d.Attempts, &d.LastError, &d.LastAttemptAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery row: %w", err)
		}
		d.Kind = feed.Kind(k)
		d.ChannelKind = feed.ChannelKind(ch)
		d.Status = feed.Status(st)
		deliveries = append(deliveries, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery rows: %w", err)
	}

	return deliveries, nil
}

func (r *SQLDeliveryRepository) GetStats() (DeliveryStats, error) {
	var stats DeliveryStats
	err := r.db.QueryRow(`
		SELECT
			SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END)
		FROM deliveries
	`).Scan(
		&nullInt{&stats.Sent},
		&nullInt{&stats.Failed},
		&nullInt{&stats.Pending},
	)
	if err != nil {
		return DeliveryStats{}, fmt.Errorf("failed to get delivery stats: %w", err)
	}
	return stats, nil
}

// nullInt scans a nullable aggregate into an int, treating NULL as zero.
type nullInt struct {
	dest *int
}

func (n *nullInt) Scan(value any) error {
	var v sql.NullInt64
	if err := v.Scan(value); err != nil {
		return err
	}
	*n.dest = int(v.Int64)
	return nil
}

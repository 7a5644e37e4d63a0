package database

import (
	"fmt"
	"time"

	"github.com/htbwatch/htb-relay/app/feed"
)

var _ ItemRepository = (*SQLItemRepository)(nil)

// SQLItemRepository keeps the permanent record of every item ever sighted.
// Rows are never deleted; together with the deliveries table they form the
// dedup ledger.
type SQLItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *SQLItemRepository {
	return &SQLItemRepository{db: db}
}

func (r *SQLItemRepository) UpsertItem(item feed.Item) error {
	_, err := r.db.Exec(`
		INSERT INTO items (kind, item_key, name, os, category, difficulty, creator, url, release_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, item_key) DO UPDATE SET
			name = excluded.name,
			os = excluded.os,
			category = excluded.category,
			difficulty = excluded.difficulty,
			creator = excluded.creator,
			url = excluded.url,
			release_at = excluded.release_at
	`, string(item.Kind), item.Key(), item.Name, item.OS, item.Category,
		item.Difficulty, item.Creator, item.URL, item.ReleaseAt)

	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}

	return nil
}

// GetReleasedSince returns items whose release time falls after the given
// lower bound, ordered by release time. The iCalendar surface passes a point
// in the past to keep recent releases visible alongside upcoming ones.
func (r *SQLItemRepository) GetReleasedSince(since time.Time) ([]StoredItem, error) {
	rows, err := r.db.Query(`
		SELECT kind, item_key, name, os, category, difficulty, creator, url, release_at, created_at
		FROM items
		WHERE release_at IS NOT NULL AND release_at > ?
		ORDER BY release_at ASC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get released items: %w", err)
	}
	defer rows.Close()

	var items []StoredItem
	for rows.Next() {
		var item StoredItem
		var kind string
		if err := rows.Scan(&kind, &item.ItemKey, &item.Name, &item.OS, &item.Category,
			&item.Difficulty, &item.Creator, &item.URL, &item.ReleaseAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		item.Kind = feed.Kind(kind)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func (r *SQLItemRepository) GetItemCount() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

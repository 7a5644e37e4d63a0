package database

import (
	"time"

	"github.com/htbwatch/htb-relay/app/feed"
)

// Delivery is one row of the permanent delivery ledger: the persisted state
// of one (item, channel kind) pair.
type Delivery struct {
	Kind          feed.Kind
	ItemKey       string
	ChannelKind   feed.ChannelKind
	Status        feed.Status
	ExternalRef   string
	Attempts      int
	LastError     string
	LastAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Marker bounds what "new" means for a feed's next poll cycle.
type Marker struct {
	LastPollAt time.Time
	Cursor     string
}

// StoredItem is one row of the permanent item ledger.
type StoredItem struct {
	Kind       feed.Kind
	ItemKey    string
	Name       string
	OS         string
	Category   string
	Difficulty string
	Creator    string
	URL        string
	ReleaseAt  *time.Time
	CreatedAt  time.Time
}

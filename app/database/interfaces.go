package database

import (
	"time"

	"github.com/htbwatch/htb-relay/app/feed"
)

// DeliveryStats summarizes the ledger for the operator surface.
type DeliveryStats struct {
	Sent    int
	Failed  int
	Pending int
}

type DeliveryRepository interface {
	GetDeliveryStatus(kind feed.Kind, itemKey string) (map[feed.ChannelKind]feed.Status, error)
	GetDelivery(kind feed.Kind, itemKey string, channel feed.ChannelKind) (*Delivery, error)
	MarkDelivered(kind feed.Kind, itemKey string, channel feed.ChannelKind, externalRef string) error
	MarkFailed(kind feed.Kind, itemKey string, channel feed.ChannelKind, cause error) error
	IsFullyDelivered(kind feed.Kind, itemKey string, required []feed.ChannelKind) (bool, error)
	GetStuck(maxAttempts int) ([]Delivery, error)
	GetStats() (DeliveryStats, error)
}

type MarkerRepository interface {
	GetMarker(kind feed.Kind) (*Marker, error)
	SetMarker(kind feed.Kind, marker Marker) error
}

type ItemRepository interface {
	UpsertItem(item feed.Item) error
	GetReleasedSince(since time.Time) ([]StoredItem, error)
	GetItemCount() (int, error)
}

package feed

import (
	"fmt"
	"time"
)

// Kind identifies one independently polled HTB content feed.
type Kind string

const (
	KindMachines   Kind = "machines"
	KindChallenges Kind = "challenges"
	KindNotices    Kind = "notices"
)

// Kinds lists all known feed kinds in a stable order.
var Kinds = []Kind{KindMachines, KindChallenges, KindNotices}

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindMachines, KindChallenges, KindNotices:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown feed kind: %q", s)
}

// ChannelKind identifies one delivery mechanism for an item.
type ChannelKind string

const (
	ChannelAnnouncement ChannelKind = "announcement"
	ChannelThread       ChannelKind = "thread"
	ChannelEvent        ChannelKind = "event"
)

// Status is the persisted state of one (item, channel kind) delivery.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Item is one unit of remote content within a feed.
type Item struct {
	Kind       Kind
	ID         int64  // stable external identifier, 0 when absent
	Hash       string // content hash, set when ID is absent
	Name       string
	OS         string // machines only
	Category   string // challenges only
	Difficulty string
	Creator    string
	AvatarURL  string
	URL        string
	NoticeType string // notices only: info, warning, error, success
	Message    string // notices only
	ReleaseAt  *time.Time
	Retiring   string // machines only: "Name (Difficulty) - OS"
}

// Key returns the identity used for the permanent dedup ledger. Stable
// numeric IDs win; notices without one fall back to the content hash.
func (i Item) Key() string {
	if i.ID != 0 {
		return fmt.Sprintf("%d", i.ID)
	}
	return i.Hash
}

// RequiredChannels returns the channel kinds an item of this kind must
// reach before it counts as fully delivered. Per-step config toggles
// narrow the set; notices only ever get an announcement.
func RequiredChannels(kind Kind, announcements, threads, events bool) []ChannelKind {
	if kind == KindNotices {
		if announcements {
			return []ChannelKind{ChannelAnnouncement}
		}
		return nil
	}

	var channels []ChannelKind
	if announcements {
		channels = append(channels, ChannelAnnouncement)
	}
	if threads {
		channels = append(channels, ChannelThread)
	}
	if events {
		channels = append(channels, ChannelEvent)
	}
	return channels
}

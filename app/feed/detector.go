package feed

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// DeliveryStatusSource is the slice of the state store the detector needs.
type DeliveryStatusSource interface {
	GetDeliveryStatus(kind Kind, itemKey string) (map[ChannelKind]Status, error)
}

// Pending is one item together with the channel kinds still owed to it.
type Pending struct {
	Item     Item
	Channels []ChannelKind
}

// Detector separates "already fully delivered" from "new work". An item is
// new work if any required channel kind has not reached sent yet, which
// covers both never-seen items and items left half-delivered by a crash.
type Detector struct {
	statuses DeliveryStatusSource
}

func NewDetector(statuses DeliveryStatusSource) *Detector {
	return &Detector{statuses: statuses}
}

// Detect returns the subset of items still owed deliveries, ordered
// ascending by release time. Items without a release time sort last and
// fetch order is preserved among ties, so announcements land in
// chronological release order.
func (d *Detector) Detect(items []Item, required []ChannelKind) ([]Pending, error) {
	var pending []Pending

	for _, item := range items {
		status, err := d.statuses.GetDeliveryStatus(item.Kind, item.Key())
		if err != nil {
			return nil, fmt.Errorf("failed to get delivery status for %s/%s: %w", item.Kind, item.Key(), err)
		}

		channels := lo.Filter(required, func(ch ChannelKind, _ int) bool {
			return status[ch] != StatusSent
		})
		if len(channels) == 0 {
			continue
		}

		pending = append(pending, Pending{Item: item, Channels: channels})
	}

	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i].Item.ReleaseAt, pending[j].Item.ReleaseAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	return pending, nil
}

package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/htbwatch/htb-relay/app/database"
	"github.com/htbwatch/htb-relay/app/deliver"
	"github.com/htbwatch/htb-relay/app/feed"
)

// Fetcher is the feed client as the poll task sees it.
type Fetcher interface {
	Fetch(ctx context.Context, kind feed.Kind, since *time.Time) ([]feed.Item, time.Time, error)
}

// PollFeedTask runs one complete poll cycle for one feed kind: fetch, diff
// against the ledger, deliver every pending item, then advance the marker.
type PollFeedTask struct {
	Task
	fetcher      Fetcher
	detector     *feed.Detector
	deliverer    *deliver.Deliverer
	markers      database.MarkerRepository
	required     []feed.ChannelKind
	opts         deliver.Options
	fetchTimeout time.Duration
}

func NewPollFeedTask(kind feed.Kind, fetcher Fetcher, detector *feed.Detector,
	deliverer *deliver.Deliverer, markers database.MarkerRepository,
	required []feed.ChannelKind, opts deliver.Options, fetchTimeout time.Duration) *PollFeedTask {
	return &PollFeedTask{
		Task:         NewTask(kind),
		fetcher:      fetcher,
		detector:     detector,
		deliverer:    deliverer,
		markers:      markers,
		required:     required,
		opts:         opts,
		fetchTimeout: fetchTimeout,
	}
}

// Execute runs one cycle. Any returned error leaves the stored state at its
// last consistent point; the scheduler retries the whole cycle after
// backoff. The marker advances only after every item in the batch received
// at least one delivery attempt, so nothing is silently skipped.
func (t *PollFeedTask) Execute(ctx context.Context) error {
	t.Start()

	marker, err := t.markers.GetMarker(t.Kind)
	if err != nil {
		return fmt.Errorf("failed to load feed marker: %w", err)
	}

	var since *time.Time
	if marker != nil {
		since = &marker.LastPollAt
	}

	fetchCtx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()

	items, newMarker, err := t.fetcher.Fetch(fetchCtx, t.Kind, since)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	pending, err := t.detector.Detect(items, t.required)
	if err != nil {
		return fmt.Errorf("failed to detect new items: %w", err)
	}

	delivered := 0
	for _, p := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Only state-store failures propagate; step failures are recorded
		// in the ledger and count as an attempt.
		if err := t.deliverer.Deliver(ctx, p, t.opts); err != nil {
			return fmt.Errorf("failed to persist delivery state for %s: %w", p.Item.Name, err)
		}
		delivered++
	}

	if err := t.markers.SetMarker(t.Kind, database.Marker{LastPollAt: newMarker}); err != nil {
		return fmt.Errorf("failed to persist feed marker: %w", err)
	}

	slog.Info("Poll cycle completed",
		"feed", t.Kind,
		"duration", t.GetDuration(),
		"total", len(items),
		"attempted", delivered,
		"already_delivered", len(items)-len(pending))

	return nil
}

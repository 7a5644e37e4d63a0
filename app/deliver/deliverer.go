// Package deliver executes the ordered delivery steps for one item and
// records progress after every step, so an interrupted sequence resumes
// from the first incomplete step on the next poll cycle.
package deliver

import (
	"context"
	"log/slog"
	"time"

	"github.com/htbwatch/htb-relay/app/database"
	"github.com/htbwatch/htb-relay/app/feed"
	"github.com/htbwatch/htb-relay/app/osint"
)

// Messenger is the messaging-platform client. Every operation returns a
// stable reference usable for later lookup.
type Messenger interface {
	PostAnnouncement(ctx context.Context, channelID string, item feed.Item, enrichment *osint.Enrichment) (string, error)
	CreateForumThread(ctx context.Context, forumChannelID string, item feed.Item) (string, error)
	CreateScheduledEvent(ctx context.Context, voiceChannelID string, item feed.Item) (string, error)
}

// Enricher gathers optional background for the announcement body.
type Enricher interface {
	Enrich(ctx context.Context, item feed.Item) (*osint.Enrichment, error)
}

// Archiver stores item links in an external archive.
type Archiver interface {
	Archive(ctx context.Context, url, name string) error
}

// Options scope one delivery run to a feed's configuration.
type Options struct {
	AnnounceChannelID string
	ForumChannelID    string
	VoiceChannelID    string
	MaxAttempts       int
	CallTimeout       time.Duration
}

// stepOrder fixes the strict execution order of the delivery steps.
var stepOrder = []feed.ChannelKind{feed.ChannelAnnouncement, feed.ChannelThread, feed.ChannelEvent}

type Deliverer struct {
	deliveries database.DeliveryRepository
	items      database.ItemRepository
	messenger  Messenger
	enricher   Enricher // nil disables enrichment
	archiver   Archiver // nil disables link archival
	now        func() time.Time
}

func NewDeliverer(deliveries database.DeliveryRepository, items database.ItemRepository,
	messenger Messenger, enricher Enricher, archiver Archiver) *Deliverer {
	return &Deliverer{
		deliveries: deliveries,
		items:      items,
		messenger:  messenger,
		enricher:   enricher,
		archiver:   archiver,
		now:        time.Now,
	}
}

// Deliver runs the pending steps for one item in strict order. Step
// failures are recorded in the ledger and do not block later steps or
// other items; only state-store failures are returned, aborting the cycle.
func (d *Deliverer) Deliver(ctx context.Context, pending feed.Pending, opts Options) error {
	item := pending.Item

	if err := d.items.UpsertItem(item); err != nil {
		return err
	}

	for _, step := range stepOrder {
		if !containsChannel(pending.Channels, step) {
			continue
		}

		skip, err := d.checkStep(item, step, opts.MaxAttempts)
		if err != nil {
			return err
		}
		if skip {
			continue
		}

		if err := d.executeStep(ctx, item, step, opts); err != nil {
			return err
		}
	}

	return nil
}

// checkStep re-reads the ledger before executing: a step already sent is
// skipped (idempotent resume), and a step past the attempt threshold is
// surfaced but left failed for manual intervention.
func (d *Deliverer) checkStep(item feed.Item, step feed.ChannelKind, maxAttempts int) (skip bool, err error) {
	record, err := d.deliveries.GetDelivery(item.Kind, item.Key(), step)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}

	if record.Status == feed.StatusSent {
		slog.Debug("Step already delivered, skipping",
			"kind", item.Kind, "item", item.Name, "step", step, "ref", record.ExternalRef)
		return true, nil
	}

	if maxAttempts > 0 && record.Attempts >= maxAttempts {
		slog.Warn("Delivery attempts exhausted, leaving record failed",
			"kind", item.Kind, "item", item.Name, "step", step,
			"attempts", record.Attempts, "last_error", record.LastError)
		return true, nil
	}

	return false, nil
}

func (d *Deliverer) executeStep(ctx context.Context, item feed.Item, step feed.ChannelKind, opts Options) error {
	// Events for releases already past are recorded terminally instead of
	// being retried forever.
	if step == feed.ChannelEvent && (item.ReleaseAt == nil || item.ReleaseAt.Before(d.now())) {
		slog.Info("Release time absent or past, skipping event",
			"kind", item.Kind, "item", item.Name)
		return d.deliveries.MarkDelivered(item.Kind, item.Key(), step, "")
	}

	callCtx := ctx
	if opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.CallTimeout)
		defer cancel()
	}

	ref, stepErr := d.runStep(callCtx, item, step, opts)
	if stepErr != nil {
		slog.Error("Delivery step failed",
			"kind", item.Kind, "item", item.Name, "step", step, "error", stepErr)
		return d.deliveries.MarkFailed(item.Kind, item.Key(), step, stepErr)
	}

	if err := d.deliveries.MarkDelivered(item.Kind, item.Key(), step, ref); err != nil {
		return err
	}

	slog.Info("Delivery step completed",
		"kind", item.Kind, "item", item.Name, "step", step, "ref", ref)

	if step == feed.ChannelAnnouncement {
		d.archiveLink(ctx, item)
	}

	return nil
}

func (d *Deliverer) runStep(ctx context.Context, item feed.Item, step feed.ChannelKind, opts Options) (string, error) {
	switch step {
	case feed.ChannelAnnouncement:
		return d.messenger.PostAnnouncement(ctx, opts.AnnounceChannelID, item, d.enrich(ctx, item))
	case feed.ChannelThread:
		return d.messenger.CreateForumThread(ctx, opts.ForumChannelID, item)
	default:
		return d.messenger.CreateScheduledEvent(ctx, opts.VoiceChannelID, item)
	}
}

// enrich is best-effort: a failure only omits enrichment content from the
// announcement body.
func (d *Deliverer) enrich(ctx context.Context, item feed.Item) *osint.Enrichment {
	if d.enricher == nil {
		return nil
	}

	enrichment, err := d.enricher.Enrich(ctx, item)
	if err != nil {
		slog.Warn("Enrichment failed, announcing without it",
			"kind", item.Kind, "item", item.Name, "error", err)
		return nil
	}
	return enrichment
}

// archiveLink is best-effort and never affects delivery state.
func (d *Deliverer) archiveLink(ctx context.Context, item feed.Item) {
	if d.archiver == nil || item.URL == "" {
		return
	}

	if err := d.archiver.Archive(ctx, item.URL, item.Name); err != nil {
		slog.Warn("Link archival failed",
			"kind", item.Kind, "item", item.Name, "url", item.URL, "error", err)
	}
}

func containsChannel(channels []feed.ChannelKind, target feed.ChannelKind) bool {
	for _, ch := range channels {
		if ch == target {
			return true
		}
	}
	return false
}

package deliver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/htbwatch/htb-relay/app/database"
	"github.com/htbwatch/htb-relay/app/feed"
	"github.com/htbwatch/htb-relay/app/osint"
)

// memLedger is an in-memory DeliveryRepository + ItemRepository standing in
// for the sqlite store.
type memLedger struct {
	records map[string]*database.Delivery
	items   map[string]feed.Item
	failOps bool
}

func newMemLedger() *memLedger {
	return &memLedger{
		records: make(map[string]*database.Delivery),
		items:   make(map[string]feed.Item),
	}
}

func key(kind feed.Kind, itemKey string, ch feed.ChannelKind) string {
	return fmt.Sprintf("%s/%s/%s", kind, itemKey, ch)
}

func (m *memLedger) GetDeliveryStatus(kind feed.Kind, itemKey string) (map[feed.ChannelKind]feed.Status, error) {
	status := make(map[feed.ChannelKind]feed.Status)
	for _, r := range m.records {
		if r.Kind == kind && r.ItemKey == itemKey {
			status[r.ChannelKind] = r.Status
		}
	}
	return status, nil
}

func (m *memLedger) GetDelivery(kind feed.Kind, itemKey string, ch feed.ChannelKind) (*database.Delivery, error) {
	if m.failOps {
		return nil, errors.New("ledger unavailable")
	}
	r, ok := m.records[key(kind, itemKey, ch)]
	if !ok {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (m *memLedger) MarkDelivered(kind feed.Kind, itemKey string, ch feed.ChannelKind, ref string) error {
	r := m.record(kind, itemKey, ch)
	if r.Status == feed.StatusSent {
		return nil
	}
	r.Status = feed.StatusSent
	r.ExternalRef = ref
	r.Attempts++
	r.LastError = ""
	return nil
}

func (m *memLedger) MarkFailed(kind feed.Kind, itemKey string, ch feed.ChannelKind, cause error) error {
	r := m.record(kind, itemKey, ch)
	if r.Status == feed.StatusSent {
		return nil
	}
	r.Status = feed.StatusFailed
	r.Attempts++
	r.LastError = cause.Error()
	return nil
}

func (m *memLedger) IsFullyDelivered(kind feed.Kind, itemKey string, required []feed.ChannelKind) (bool, error) {
	status, _ := m.GetDeliveryStatus(kind, itemKey)
	for _, ch := range required {
		if status[ch] != feed.StatusSent {
			return false, nil
		}
	}
	return true, nil
}

func (m *memLedger) GetStuck(maxAttempts int) ([]database.Delivery, error) {
	var stuck []database.Delivery
	for _, r := range m.records {
		if r.Status == feed.StatusFailed && r.Attempts >= maxAttempts {
			stuck = append(stuck, *r)
		}
	}
	return stuck, nil
}

func (m *memLedger) GetStats() (database.DeliveryStats, error) {
	return database.DeliveryStats{}, nil
}

func (m *memLedger) UpsertItem(item feed.Item) error {
	if m.failOps {
		return errors.New("ledger unavailable")
	}
	m.items[string(item.Kind)+"/"+item.Key()] = item
	return nil
}

func (m *memLedger) GetReleasedSince(since time.Time) ([]database.StoredItem, error) { return nil, nil }
func (m *memLedger) GetItemCount() (int, error)                              { return len(m.items), nil }

func (m *memLedger) record(kind feed.Kind, itemKey string, ch feed.ChannelKind) *database.Delivery {
	k := key(kind, itemKey, ch)
	if r, ok := m.records[k]; ok {
		return r
	}
	r := &database.Delivery{Kind: kind, ItemKey: itemKey, ChannelKind: ch, Status: feed.StatusPending}
	m.records[k] = r
	return r
}

// fakeMessenger records platform calls and fails selected steps.
type fakeMessenger struct {
	calls     []string
	failSteps map[feed.ChannelKind]error
	nextRef   int
}

func (f *fakeMessenger) step(ch feed.ChannelKind, item feed.Item) (string, error) {
	f.calls = append(f.calls, string(ch)+":"+item.Name)
	if err := f.failSteps[ch]; err != nil {
		return "", err
	}
	f.nextRef++
	return fmt.Sprintf("ref-%d", f.nextRef), nil
}

func (f *fakeMessenger) PostAnnouncement(_ context.Context, _ string, item feed.Item, _ *osint.Enrichment) (string, error) {
	return f.step(feed.ChannelAnnouncement, item)
}

func (f *fakeMessenger) CreateForumThread(_ context.Context, _ string, item feed.Item) (string, error) {
	return f.step(feed.ChannelThread, item)
}

func (f *fakeMessenger) CreateScheduledEvent(_ context.Context, _ string, item feed.Item) (string, error) {
	return f.step(feed.ChannelEvent, item)
}

func futureTime(t *testing.T) *time.Time {
	t.Helper()
	ts := time.Now().Add(48 * time.Hour).UTC()
	return &ts
}

func testOptions() Options {
	return Options{
		AnnounceChannelID: "announce",
		ForumChannelID:    "forum",
		VoiceChannelID:    "voice",
		MaxAttempts:       10,
		CallTimeout:       time.Second,
	}
}

var allChannels = []feed.ChannelKind{feed.ChannelAnnouncement, feed.ChannelThread, feed.ChannelEvent}

func TestDeliverer_DeliversAllStepsInOrder(t *testing.T) {
	ledger := newMemLedger()
	messenger := &fakeMessenger{}
	deliverer := NewDeliverer(ledger, ledger, messenger, nil, nil)

	item := feed.Item{Kind: feed.KindMachines, ID: 1, Name: "Editor", ReleaseAt: futureTime(t)}

	err := deliverer.Deliver(context.Background(), feed.Pending{Item: item, Channels: allChannels}, testOptions())
	if err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}

	want := []string{"announcement:Editor", "thread:Editor", "event:Editor"}
	if len(messenger.calls) != len(want) {
		t.Fatalf("Expected %d calls, got %v", len(want), messenger.calls)
	}
	for i := range want {
		if messenger.calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], messenger.calls[i])
		}
	}

	done, _ := ledger.IsFullyDelivered(feed.KindMachines, "1", allChannels)
	if !done {
		t.Errorf("Item should be fully delivered")
	}
}

func TestDeliverer_SecondRunMakesNoPlatformCalls(t *testing.T) {
	ledger := newMemLedger()
	messenger := &fakeMessenger{}
	deliverer := NewDeliverer(ledger, ledger, messenger, nil, nil)

	item := feed.Item{Kind: feed.KindMachines, ID: 1, Name: "Editor", ReleaseAt: futureTime(t)}
	pending := feed.Pending{Item: item, Channels: allChannels}

	if err := deliverer.Deliver(context.Background(), pending, testOptions()); err != nil {
		t.Fatalf("First Deliver returned error: %v", err)
	}
	firstRun := len(messenger.calls)

	// A second cycle against an unchanged remote set re-delivers the same
	// pending struct; the ledger must prevent any further platform calls.
	if err := deliverer.Deliver(context.Background(), pending, testOptions()); err != nil {
		t.Fatalf("Second Deliver returned error: %v", err)
	}

	if len(messenger.calls) != firstRun {
		t.Errorf("Second run should make zero additional calls, got %v", messenger.calls[firstRun:])
	}
}

func TestDeliverer_ResumesFromFirstUnsentStep(t *testing.T) {
	ledger := newMemLedger()
	messenger := &fakeMessenger{failSteps: map[feed.ChannelKind]error{
		feed.ChannelThread: errors.New("forum unavailable"),
	}}
	deliverer := NewDeliverer(ledger, ledger, messenger, nil, nil)

	item := feed.Item{Kind: feed.KindMachines, ID: 7, Name: "Cap", ReleaseAt: futureTime(t)}
	pending := feed.Pending{Item: item, Channels: allChannels}

	if err := deliverer.Deliver(context.Background(), pending, testOptions()); err != nil {
		t.Fatalf("First Deliver returned error: %v", err)
	}

	record, _ := ledger.GetDelivery(feed.KindMachines, "7", feed.ChannelThread)
	if record == nil || record.Status != feed.StatusFailed {
		t.Fatalf("Thread step should be recorded failed, got %+v", record)
	}
	if record.Attempts != 1 {
		t.Errorf("Expected 1 attempt recorded, got %d", record.Attempts)
	}
	if record.LastError == "" {
		t.Errorf("Failed record should carry the error")
	}

	// Next cycle: forum is back. Only thread may be re-attempted; the
	// announcement and event must not be re-delivered.
	messenger.failSteps = nil
	messenger.calls = nil

	status, _ := ledger.GetDeliveryStatus(feed.KindMachines, "7")
	var channels []feed.ChannelKind
	for _, ch := range allChannels {
		if status[ch] != feed.StatusSent {
			channels = append(channels, ch)
		}
	}

	if err := deliverer.Deliver(context.Background(), feed.Pending{Item: item, Channels: channels}, testOptions()); err != nil {
		t.Fatalf("Second Deliver returned error: %v", err)
	}

	if len(messenger.calls) != 1 || messenger.calls[0] != "thread:Cap" {
		t.Errorf("Expected only the thread to be re-attempted, got %v", messenger.calls)
	}

	done, _ := ledger.IsFullyDelivered(feed.KindMachines, "7", allChannels)
	if !done {
		t.Errorf("Item should be fully delivered after resumption")
	}
}

func TestDeliverer_StepFailureDoesNotBlockLaterSteps(t *testing.T) {
	ledger := newMemLedger()
	messenger := &fakeMessenger{failSteps: map[feed.ChannelKind]error{
		feed.ChannelAnnouncement: errors.New("channel gone"),
	}}
	deliverer := NewDeliverer(ledger, ledger, messenger, nil, nil)

	item := feed.Item{Kind: feed.KindChallenges, ID: 9, Name: "Crypto100", ReleaseAt: futureTime(t)}

	if err := deliverer.Deliver(context.Background(), feed.Pending{Item: item, Channels: allChannels}, testOptions()); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}

	status, _ := ledger.GetDeliveryStatus(feed.KindChallenges, "9")
	if status[feed.ChannelAnnouncement] != feed.StatusFailed {
		t.Errorf("Announcement should be failed, got %s", status[feed.ChannelAnnouncement])
	}
	if status[feed.ChannelThread] != feed.StatusSent {
		t.Errorf("Thread should still be delivered, got %s", status[feed.ChannelThread])
	}
	if status[feed.ChannelEvent] != feed.StatusSent {
		t.Errorf("Event should still be delivered, got %s", status[feed.ChannelEvent])
	}
}

func TestDeliverer_SkipsEventForPastRelease(t *testing.T) {
	ledger := newMemLedger()
	messenger := &fakeMessenger{}
	deliverer := NewDeliverer(ledger, ledger, messenger, nil, nil)

	past := time.Now().Add(-time.Hour).UTC()
	item := feed.Item{Kind: feed.KindMachines, ID: 3, Name: "Old", ReleaseAt: &past}

	if err := deliverer.Deliver(context.Background(), feed.Pending{Item: item, Channels: []feed.ChannelKind{feed.ChannelEvent}}, testOptions()); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}

	for _, call := range messenger.calls {
		if call == "event:Old" {
			t.Errorf("Event for a past release must not reach the platform")
		}
	}

	// The step is recorded terminally so the item counts as delivered.
	record, _ := ledger.GetDelivery(feed.KindMachines, "3", feed.ChannelEvent)
	if record == nil || record.Status != feed.StatusSent {
		t.Errorf("Skipped event should be recorded sent, got %+v", record)
	}
	if record != nil && record.ExternalRef != "" {
		t.Errorf("Skipped event should carry no external ref, got %q", record.ExternalRef)
	}
}

func TestDeliverer_ExhaustedStepIsSurfacedNotRetried(t *testing.T) {
	ledger := newMemLedger()
	messenger := &fakeMessenger{failSteps: map[feed.ChannelKind]error{
		feed.ChannelAnnouncement: errors.New("still broken"),
	}}
	deliverer := NewDeliverer(ledger, ledger, messenger, nil, nil)

	item := feed.Item{Kind: feed.KindNotices, ID: 5, Name: "Notice"}
	pending := feed.Pending{Item: item, Channels: []feed.ChannelKind{feed.ChannelAnnouncement}}
	opts := testOptions()
	opts.MaxAttempts = 2

	for i := 0; i < 5; i++ {
		if err := deliverer.Deliver(context.Background(), pending, opts); err != nil {
			t.Fatalf("Deliver %d returned error: %v", i, err)
		}
	}

	if len(messenger.calls) != 2 {
		t.Errorf("Expected exactly %d attempts before giving up, got %d", 2, len(messenger.calls))
	}

	// The record stays failed and queryable, never deleted.
	stuck, _ := ledger.GetStuck(2)
	if len(stuck) != 1 {
		t.Fatalf("Expected 1 stuck record, got %d", len(stuck))
	}
	if stuck[0].Attempts != 2 {
		t.Errorf("Expected 2 recorded attempts, got %d", stuck[0].Attempts)
	}
}

type stubEnricher struct {
	enrichment *osint.Enrichment
	err        error
	calls      int
}

func (s *stubEnricher) Enrich(context.Context, feed.Item) (*osint.Enrichment, error) {
	s.calls++
	return s.enrichment, s.err
}

func TestDeliverer_EnrichmentFailureDoesNotBlockAnnouncement(t *testing.T) {
	ledger := newMemLedger()
	messenger := &fakeMessenger{}
	enricher := &stubEnricher{err: errors.New("osint down")}
	deliverer := NewDeliverer(ledger, ledger, messenger, enricher, nil)

	item := feed.Item{Kind: feed.KindMachines, ID: 11, Name: "Editor", ReleaseAt: futureTime(t)}

	err := deliverer.Deliver(context.Background(), feed.Pending{Item: item, Channels: []feed.ChannelKind{feed.ChannelAnnouncement}}, testOptions())
	if err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}

	if enricher.calls != 1 {
		t.Errorf("Expected one enrichment attempt, got %d", enricher.calls)
	}

	status, _ := ledger.GetDeliveryStatus(feed.KindMachines, "11")
	if status[feed.ChannelAnnouncement] != feed.StatusSent {
		t.Errorf("Announcement should succeed without enrichment, got %s", status[feed.ChannelAnnouncement])
	}
}

func TestDeliverer_StoreFailureAbortsDelivery(t *testing.T) {
	ledger := newMemLedger()
	ledger.failOps = true
	deliverer := NewDeliverer(ledger, ledger, &fakeMessenger{}, nil, nil)

	item := feed.Item{Kind: feed.KindMachines, ID: 2, Name: "Editor"}

	err := deliverer.Deliver(context.Background(), feed.Pending{Item: item, Channels: allChannels}, testOptions())
	if err == nil {
		t.Fatalf("Expected storage error to propagate")
	}
}

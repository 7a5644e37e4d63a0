// Package osint gathers public background on a machine's makers. The whole
// package is best-effort: a failure here only trims the announcement body,
// it never blocks a delivery.
package osint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/htbwatch/htb-relay/app/feed"
	"github.com/htbwatch/htb-relay/app/htb"
)

// ProfileSource is the slice of the HTB client the enricher needs.
type ProfileSource interface {
	MachineProfile(ctx context.Context, name string) (*htb.MachineProfile, error)
	MakerProfile(ctx context.Context, makerID int64) (*htb.MakerProfile, error)
}

// Enrichment is the gathered background for one item, consumed by the
// announcement embed builder.
type Enrichment struct {
	Makers []MakerSummary
}

type MakerSummary struct {
	Name       string
	Rank       string
	Ranking    int
	SystemOwns int
	UserOwns   int
	Respects   int
	Country    string
	Team       string
	ProfileURL string
}

type Enricher struct {
	profiles ProfileSource
}

func NewEnricher(profiles ProfileSource) *Enricher {
	return &Enricher{profiles: profiles}
}

// Enrich looks up the item's makers. Only machines carry maker profiles;
// other kinds return an empty enrichment without network calls.
func (e *Enricher) Enrich(ctx context.Context, item feed.Item) (*Enrichment, error) {
	if item.Kind != feed.KindMachines {
		return &Enrichment{}, nil
	}

	machine, err := e.profiles.MachineProfile(ctx, item.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to enrich %s: %w", item.Name, err)
	}

	enrichment := &Enrichment{}
	for _, maker := range machine.Makers {
		profile, err := e.profiles.MakerProfile(ctx, maker.ID)
		if err != nil {
			// Partial enrichment beats none.
			slog.Warn("Failed to fetch maker profile", "maker_id", maker.ID, "error", err)
			continue
		}

		enrichment.Makers = append(enrichment.Makers, MakerSummary{
			Name:       profile.Name,
			Rank:       profile.Rank,
			Ranking:    profile.Ranking,
			SystemOwns: profile.SystemOwns,
			UserOwns:   profile.UserOwns,
			Respects:   profile.Respects,
			Country:    profile.Country,
			Team:       profile.Team,
			ProfileURL: fmt.Sprintf("https://app.hackthebox.com/users/%d", profile.ID),
		})
	}

	return enrichment, nil
}

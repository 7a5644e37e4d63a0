package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/htbwatch/htb-relay/app/database"
	"github.com/htbwatch/htb-relay/app/feed"
)

const (
	icsCRLF      = "\r\n"
	icsLineLimit = 75

	// Platform releases have no published end time, so every event gets a
	// fixed slot.
	eventDuration = 2 * time.Hour
)

var icsEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\n", `\n`,
)

// foldLine wraps a content line at 75 octets with a leading space on every
// continuation, per RFC 5545 section 3.1.
func foldLine(line string) string {
	if len(line) <= icsLineLimit {
		return line
	}

	var out []string
	for first := true; line != ""; first = false {
		limit := icsLineLimit
		if limit > len(line) {
			limit = len(line)
		}
		chunk := line[:limit]
		line = line[limit:]
		if !first {
			chunk = " " + chunk
		}
		out = append(out, chunk)
	}

	return strings.Join(out, icsCRLF)
}

func icsTime(ts time.Time) string {
	return ts.UTC().Format("20060102T150405Z")
}

func eventSummary(item database.StoredItem) string {
	switch item.Kind {
	case feed.KindChallenges:
		return "HTB Challenge: " + item.Name
	default:
		return "HTB Machine: " + item.Name
	}
}

func eventDescription(item database.StoredItem) string {
	orDash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}

	if item.Kind == feed.KindChallenges {
		return fmt.Sprintf("Category: %s | Difficulty: %s", orDash(item.Category), orDash(item.Difficulty))
	}
	return fmt.Sprintf("OS: %s | Difficulty: %s", orDash(item.OS), orDash(item.Difficulty))
}

func buildEvent(item database.StoredItem, now time.Time) string {
	start := *item.ReleaseAt
	end := start.Add(eventDuration)
	uid := fmt.Sprintf("htb-%s-%s@htb-relay", item.Kind, item.ItemKey)

	lines := []string{
		"BEGIN:VEVENT",
		"UID:" + icsEscaper.Replace(uid),
		"DTSTAMP:" + icsTime(now),
		"DTSTART:" + icsTime(start),
		"DTEND:" + icsTime(end),
		foldLine("SUMMARY:" + icsEscaper.Replace(eventSummary(item))),
		foldLine("DESCRIPTION:" + icsEscaper.Replace(eventDescription(item))),
	}
	if item.URL != "" {
		lines = append(lines, foldLine("URL:"+icsEscaper.Replace(item.URL)))
	}
	lines = append(lines, "END:VEVENT")

	return strings.Join(lines, icsCRLF)
}

// buildCalendar renders the VCALENDAR document. Items without a release time
// are skipped; notices never carry one.
func buildCalendar(items []database.StoredItem, now time.Time) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//htb-relay//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	}

	for _, item := range items {
		if item.ReleaseAt == nil {
			continue
		}
		lines = append(lines, buildEvent(item, now))
	}

	lines = append(lines, "END:VCALENDAR")

	return strings.Join(lines, icsCRLF) + icsCRLF
}

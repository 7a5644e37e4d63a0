package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/htbwatch/htb-relay/app/feed"
	"github.com/htbwatch/htb-relay/app/osint"
)

var titleCaser = cases.Title(language.English)

const (
	colorGreen  = 0x2ecc71
	colorOrange = 0xe67e22
	colorRed    = 0xe74c3c
	colorBlack  = 0x000001 // Discord renders 0 as "no color"
	colorBlue   = 0x3498db
)

func difficultyColor(difficulty string) int {
	switch strings.ToLower(difficulty) {
	case "easy":
		return colorGreen
	case "medium":
		return colorOrange
	case "hard":
		return colorRed
	case "insane":
		return colorBlack
	default:
		return colorBlue
	}
}

func noticeColorAndEmoji(noticeType string) (int, string) {
	switch noticeType {
	case "error":
		return colorRed, "❌"
	case "warning":
		return colorOrange, "⚠️"
	case "success":
		return colorGreen, "✅"
	default:
		return colorBlue, "ℹ️"
	}
}

// discordTimestamp renders a release time as a client-local timestamp tag.
func discordTimestamp(item feed.Item) string {
	if item.ReleaseAt == nil {
		return "TBA"
	}
	return fmt.Sprintf("<t:%d:F>", item.ReleaseAt.Unix())
}

// buildAnnouncementEmbed formats one item for the announcement channel.
// Enrichment is optional; without it the embed just omits the maker fields.
func buildAnnouncementEmbed(item feed.Item, enrichment *osint.Enrichment) *discordgo.MessageEmbed {
	if item.Kind == feed.KindNotices {
		noticeType := item.NoticeType
		if noticeType == "" {
			noticeType = "info"
		}
		color, emoji := noticeColorAndEmoji(noticeType)
		return &discordgo.MessageEmbed{
			Title:       fmt.Sprintf("%s %s Notice for %s", emoji, titleCaser.String(noticeType), item.Name),
			Description: item.Message,
			Color:       color,
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s: **%s**", kindLabel(item.Kind), item.Name),
		Description: "Release Date: " + discordTimestamp(item),
		Color:       difficultyColor(item.Difficulty),
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name: "Difficulty", Value: item.Difficulty, Inline: true,
	})

	switch item.Kind {
	case feed.KindMachines:
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Operating System", Value: item.OS, Inline: true,
		})
		if item.Creator != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: "Creator", Value: item.Creator, Inline: true,
			})
		}
		if item.Retiring != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: "Retiring Machine", Value: item.Retiring, Inline: false,
			})
		}
	case feed.KindChallenges:
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Category", Value: item.Category, Inline: true,
		})
	}

	if item.AvatarURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: item.AvatarURL}
	}

	if enrichment != nil {
		for _, maker := range enrichment.Makers {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:   "Maker: " + maker.Name,
				Value:  makerSummary(maker),
				Inline: false,
			})
		}
	}

	return embed
}

func makerSummary(maker osint.MakerSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s](%s) - %s", maker.Name, maker.ProfileURL, maker.Rank)
	if maker.Ranking > 0 {
		fmt.Fprintf(&b, " (#%d)", maker.Ranking)
	}
	fmt.Fprintf(&b, "\nOwns: %d system / %d user, Respects: %d", maker.SystemOwns, maker.UserOwns, maker.Respects)
	if maker.Team != "" {
		fmt.Fprintf(&b, "\nTeam: %s", maker.Team)
	}
	if maker.Country != "" {
		fmt.Fprintf(&b, "\nCountry: %s", maker.Country)
	}
	return b.String()
}

// buildThreadContent formats the opening post of a forum thread.
func buildThreadContent(item feed.Item) string {
	var b strings.Builder
	switch item.Kind {
	case feed.KindMachines:
		fmt.Fprintf(&b, "**Machine Name:** %s\n", item.Name)
		fmt.Fprintf(&b, "**Operating System:** %s\n", item.OS)
		fmt.Fprintf(&b, "**Difficulty:** %s\n", item.Difficulty)
		if item.Creator != "" {
			fmt.Fprintf(&b, "**Creator:** %s\n", item.Creator)
		}
		fmt.Fprintf(&b, "\n[View Machine on Hack The Box](%s)", item.URL)
	case feed.KindChallenges:
		fmt.Fprintf(&b, "**Challenge Name:** %s\n", item.Name)
		fmt.Fprintf(&b, "**Category:** %s\n", item.Category)
		fmt.Fprintf(&b, "**Difficulty:** %s\n", item.Difficulty)
		fmt.Fprintf(&b, "Release Date: %s", discordTimestamp(item))
	}
	return b.String()
}

// threadTagNames returns the forum tag names an item's thread should carry.
func threadTagNames(item feed.Item) []string {
	var names []string
	if item.Kind == feed.KindMachines && item.OS != "" {
		names = append(names, item.OS)
	}
	if item.Kind == feed.KindChallenges && item.Category != "" {
		names = append(names, item.Category)
	}
	if item.Difficulty != "" {
		names = append(names, item.Difficulty)
	}
	return names
}

// buildEventNameAndDescription formats the scheduled event metadata.
func buildEventNameAndDescription(item feed.Item) (string, string) {
	switch item.Kind {
	case feed.KindChallenges:
		name := fmt.Sprintf("[%s] %s", item.Category, item.Name)
		return name, fmt.Sprintf("%s - %s", item.Category, item.Difficulty)
	default:
		description := fmt.Sprintf("%s - %s", item.OS, item.Difficulty)
		if item.Creator != "" {
			description += " - by " + item.Creator
		}
		return item.Name, description + "\n\n" + item.URL
	}
}

func kindLabel(kind feed.Kind) string {
	switch kind {
	case feed.KindMachines:
		return "Machine"
	case feed.KindChallenges:
		return "Challenge"
	default:
		return "Notice"
	}
}

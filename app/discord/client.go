// Package discord wraps the Discord REST API behind the three delivery
// operations the orchestrator needs. Every call returns the stable Discord
// reference (message, thread or event ID) that goes into the delivery
// ledger.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/htbwatch/htb-relay/app/feed"
	"github.com/htbwatch/htb-relay/app/osint"
)

const (
	eventDuration              = 2 * time.Hour
	threadAutoArchiveMinutes   = 1440
	forumTagCacheRefreshPeriod = 10 * time.Minute
)

type Client struct {
	session *discordgo.Session
	guildID string

	mu       sync.Mutex
	tagCache map[string]cachedTags // forum channel ID -> tags
}

type cachedTags struct {
	byName    map[string]string // lowercased tag name -> tag ID
	fetchedAt time.Time
}

func NewClient(token, guildID string) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &Client{
		session:  session,
		guildID:  guildID,
		tagCache: make(map[string]cachedTags),
	}, nil
}

// PostAnnouncement sends the item's embed to channelID and returns the
// message ID.
func (c *Client) PostAnnouncement(ctx context.Context, channelID string, item feed.Item, enrichment *osint.Enrichment) (string, error) {
	embed := buildAnnouncementEmbed(item, enrichment)

	msg, err := c.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to post announcement: %w", err)
	}

	return msg.ID, nil
}

// CreateForumThread opens a discussion thread in forumChannelID, tagged
// with the item's OS/category and difficulty, and returns the thread ID.
// Missing tags are logged and skipped rather than failing the step.
func (c *Client) CreateForumThread(ctx context.Context, forumChannelID string, item feed.Item) (string, error) {
	tagIDs, err := c.resolveTags(ctx, forumChannelID, threadTagNames(item))
	if err != nil {
		return "", err
	}

	thread, err := c.session.ForumThreadStartComplex(forumChannelID, &discordgo.ThreadStart{
		Name:                item.Name,
		AutoArchiveDuration: threadAutoArchiveMinutes,
		AppliedTags:         tagIDs,
	}, &discordgo.MessageSend{
		Content: buildThreadContent(item),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create forum thread: %w", err)
	}

	return thread.ID, nil
}

// CreateScheduledEvent schedules a voice-channel event at the item's
// release time and returns the event ID. The caller guarantees the release
// time is present and in the future.
func (c *Client) CreateScheduledEvent(ctx context.Context, voiceChannelID string, item feed.Item) (string, error) {
	if item.ReleaseAt == nil {
		return "", fmt.Errorf("item %s has no release time", item.Name)
	}

	name, description := buildEventNameAndDescription(item)
	start := item.ReleaseAt.UTC()
	end := start.Add(eventDuration)

	event, err := c.session.GuildScheduledEventCreate(c.guildID, &discordgo.GuildScheduledEventParams{
		Name:               name,
		Description:        description,
		ScheduledStartTime: &start,
		ScheduledEndTime:   &end,
		EntityType:         discordgo.GuildScheduledEventEntityTypeVoice,
		ChannelID:          voiceChannelID,
		PrivacyLevel:       discordgo.GuildScheduledEventPrivacyLevelGuildOnly,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create scheduled event: %w", err)
	}

	return event.ID, nil
}

// resolveTags maps tag names to forum tag IDs, caching the forum's tag list
// briefly so a batch of items does not refetch the channel per item.
func (c *Client) resolveTags(ctx context.Context, forumChannelID string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	cached, ok := c.tagCache[forumChannelID]
	c.mu.Unlock()

	if !ok || time.Since(cached.fetchedAt) > forumTagCacheRefreshPeriod {
		channel, err := c.session.Channel(forumChannelID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch forum channel: %w", err)
		}

		byName := make(map[string]string, len(channel.AvailableTags))
		for _, tag := range channel.AvailableTags {
			byName[strings.ToLower(tag.Name)] = tag.ID
		}
		cached = cachedTags{byName: byName, fetchedAt: time.Now()}

		c.mu.Lock()
		c.tagCache[forumChannelID] = cached
		c.mu.Unlock()
	}

	var ids []string
	for _, name := range names {
		id, ok := cached.byName[strings.ToLower(name)]
		if !ok {
			slog.Warn("Forum tag not found, skipping", "forum", forumChannelID, "tag", name)
			continue
		}
		ids = append(ids, id)
	}

	return ids, nil
}

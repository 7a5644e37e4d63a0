package config

import (
	"time"

	"github.com/htbwatch/htb-relay/app/feed"
)

// Config is the service configuration loaded from YAML.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Discord DiscordConfig `yaml:"discord"`
	Feeds   FeedsConfig   `yaml:"feeds"`
}

// APIConfig holds credentials for the external services.
type APIConfig struct {
	HTBBearerToken       string `yaml:"htb_bearer_token"`
	DiscordToken         string `yaml:"discord_token"`
	LinkwardenURL        string `yaml:"linkwarden_url"`
	LinkwardenToken      string `yaml:"linkwarden_token"`
	LinkwardenCollection string `yaml:"linkwarden_collection"`
}

// DiscordChannels maps each delivery mechanism to its Discord channel.
type DiscordChannels struct {
	MachinesChannelID        string `yaml:"machines_channel_id"`
	MachinesForumChannelID   string `yaml:"machines_forum_channel_id"`
	MachinesVoiceChannelID   string `yaml:"machines_voice_channel_id"`
	ChallengesChannelID      string `yaml:"challenges_channel_id"`
	ChallengesForumChannelID string `yaml:"challenges_forum_channel_id"`
	ChallengesVoiceChannelID string `yaml:"challenges_voice_channel_id"`
	NoticesChannelID         string `yaml:"notices_channel_id"`
}

type DiscordConfig struct {
	GuildID  string          `yaml:"guild_id"`
	Channels DiscordChannels `yaml:"channels"`
}

// FeedSettings configures one polled feed.
type FeedSettings struct {
	Enabled            bool `yaml:"enabled"`
	PollInterval       int  `yaml:"poll_interval"` // seconds
	SendAnnouncements  bool `yaml:"send_announcements"`
	CreateForumThreads bool `yaml:"create_forum_threads"`
	CreateEvents       bool `yaml:"create_events"`
	MaxAttempts        int  `yaml:"max_attempts"`
	Timeout            int  `yaml:"timeout"` // seconds, per outbound call
}

type FeedsConfig struct {
	Machines   FeedSettings `yaml:"machines"`
	Challenges FeedSettings `yaml:"challenges"`
	Notices    FeedSettings `yaml:"notices"`
}

// Settings returns the settings block for one feed kind.
func (c *Config) Settings(kind feed.Kind) FeedSettings {
	switch kind {
	case feed.KindMachines:
		return c.Feeds.Machines
	case feed.KindChallenges:
		return c.Feeds.Challenges
	default:
		return c.Feeds.Notices
	}
}

// RequiredChannels returns the channel kinds a kind's items must reach
// under the current toggles.
func (c *Config) RequiredChannels(kind feed.Kind) []feed.ChannelKind {
	s := c.Settings(kind)
	return feed.RequiredChannels(kind, s.SendAnnouncements, s.CreateForumThreads, s.CreateEvents)
}

// Destinations returns the announcement, forum and voice channel IDs for a
// feed kind. Notices only have an announcement destination.
func (c *Config) Destinations(kind feed.Kind) (announce, forum, voice string) {
	switch kind {
	case feed.KindMachines:
		return c.Discord.Channels.MachinesChannelID,
			c.Discord.Channels.MachinesForumChannelID,
			c.Discord.Channels.MachinesVoiceChannelID
	case feed.KindChallenges:
		return c.Discord.Channels.ChallengesChannelID,
			c.Discord.Channels.ChallengesForumChannelID,
			c.Discord.Channels.ChallengesVoiceChannelID
	default:
		return c.Discord.Channels.NoticesChannelID, "", ""
	}
}

// EnabledKinds returns the feed kinds the scheduler should run.
func (c *Config) EnabledKinds() []feed.Kind {
	var kinds []feed.Kind
	for _, kind := range feed.Kinds {
		if c.Settings(kind).Enabled {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// GetPollInterval returns the poll interval as time.Duration.
func (s FeedSettings) GetPollInterval() time.Duration {
	if s.PollInterval <= 0 {
		return 600 * time.Second
	}
	return time.Duration(s.PollInterval) * time.Second
}

// GetTimeout returns the per-call timeout as time.Duration.
func (s FeedSettings) GetTimeout() time.Duration {
	if s.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.Timeout) * time.Second
}

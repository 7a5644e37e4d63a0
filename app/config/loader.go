package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/htbwatch/htb-relay/app/feed"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads, substitutes and validates the service configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	substituted, err := substituteEnvVars(string(data))
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal([]byte(substituted), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	setDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// substituteEnvVars expands ${VAR} and ${VAR:-default} references. A
// reference without a default for an unset variable is an error, so a
// missing token fails at startup instead of at the first API call.
func substituteEnvVars(text string) (string, error) {
	var substErr error
	result := envVarPattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := match[2 : len(match)-1]

		if name, def, ok := splitDefault(expr); ok {
			if value, set := os.LookupEnv(name); set {
				return value
			}
			return def
		}

		value, set := os.LookupEnv(expr)
		if !set && substErr == nil {
			substErr = fmt.Errorf("required environment variable not set: %s", expr)
		}
		return value
	})

	return result, substErr
}

func splitDefault(expr string) (name, def string, ok bool) {
	for i := 0; i < len(expr)-1; i++ {
		if expr[i] == ':' && expr[i+1] == '-' {
			return expr[:i], expr[i+2:], true
		}
	}
	return "", "", false
}

func setDefaults(config *Config) {
	if config.Feeds.Machines.PollInterval == 0 {
		config.Feeds.Machines.PollInterval = 600
	}
	if config.Feeds.Challenges.PollInterval == 0 {
		config.Feeds.Challenges.PollInterval = 600
	}
	if config.Feeds.Notices.PollInterval == 0 {
		config.Feeds.Notices.PollInterval = 60
	}

	for _, s := range []*FeedSettings{&config.Feeds.Machines, &config.Feeds.Challenges, &config.Feeds.Notices} {
		if s.MaxAttempts == 0 {
			s.MaxAttempts = 10
		}
		if s.Timeout == 0 {
			s.Timeout = 30
		}
	}
}

func validate(config *Config) error {
	if config.API.HTBBearerToken == "" {
		return fmt.Errorf("htb_bearer_token is required")
	}
	if config.API.DiscordToken == "" {
		return fmt.Errorf("discord_token is required")
	}

	enabled := config.EnabledKinds()
	if len(enabled) == 0 {
		return fmt.Errorf("no feeds enabled")
	}

	for _, kind := range enabled {
		settings := config.Settings(kind)
		required := config.RequiredChannels(kind)
		if len(required) == 0 {
			return fmt.Errorf("feed %s is enabled but all delivery steps are disabled", kind)
		}

		announce, forum, voice := config.Destinations(kind)
		if settings.SendAnnouncements && announce == "" {
			return fmt.Errorf("feed %s sends announcements but has no announcement channel configured", kind)
		}
		if settings.CreateForumThreads && forum == "" && kind != feed.KindNotices {
			return fmt.Errorf("feed %s creates forum threads but has no forum channel configured", kind)
		}
		if settings.CreateEvents && kind != feed.KindNotices {
			if voice == "" {
				return fmt.Errorf("feed %s creates events but has no voice channel configured", kind)
			}
			if config.Discord.GuildID == "" {
				return fmt.Errorf("feed %s creates events but discord.guild_id is not set", kind)
			}
		}
	}

	if (config.API.LinkwardenURL == "") != (config.API.LinkwardenToken == "") {
		return fmt.Errorf("linkwarden_url and linkwarden_token must be set together")
	}

	return nil
}

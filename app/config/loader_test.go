package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/htbwatch/htb-relay/app/feed"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
api:
  htb_bearer_token: "token"
  discord_token: "discord"
discord:
  guild_id: "1"
  channels:
    notices_channel_id: "100"
feeds:
  notices:
    enabled: true
    send_announcements: true
`

func TestLoad_MinimalConfig(t *testing.T) {
	config, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if config.Feeds.Notices.PollInterval != 60 {
		t.Errorf("Expected notices poll interval default 60, got %d", config.Feeds.Notices.PollInterval)
	}
	if config.Feeds.Notices.MaxAttempts != 10 {
		t.Errorf("Expected max attempts default 10, got %d", config.Feeds.Notices.MaxAttempts)
	}

	kinds := config.EnabledKinds()
	if len(kinds) != 1 || kinds[0] != feed.KindNotices {
		t.Errorf("Expected only notices enabled, got %v", kinds)
	}

	required := config.RequiredChannels(feed.KindNotices)
	if len(required) != 1 || required[0] != feed.ChannelAnnouncement {
		t.Errorf("Notices should require only the announcement channel, got %v", required)
	}
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_HTB_TOKEN", "secret-token")

	content := strings.Replace(minimalConfig,
		`htb_bearer_token: "token"`,
		`htb_bearer_token: "${TEST_HTB_TOKEN}"`, 1)
	content = strings.Replace(content,
		`discord_token: "discord"`,
		`discord_token: "${TEST_UNSET_VAR:-fallback}"`, 1)

	config, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if config.API.HTBBearerToken != "secret-token" {
		t.Errorf("Expected substituted token, got %q", config.API.HTBBearerToken)
	}
	if config.API.DiscordToken != "fallback" {
		t.Errorf("Expected default fallback, got %q", config.API.DiscordToken)
	}
}

func TestLoad_MissingRequiredEnvVar(t *testing.T) {
	content := strings.Replace(minimalConfig,
		`htb_bearer_token: "token"`,
		`htb_bearer_token: "${DEFINITELY_NOT_SET_VAR}"`, 1)

	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatalf("Expected error for unset required environment variable")
	}
	if !strings.Contains(err.Error(), "DEFINITELY_NOT_SET_VAR") {
		t.Errorf("Error should name the missing variable, got: %v", err)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name: "missing htb token",
			mutate: func(c string) string {
				return strings.Replace(c, `htb_bearer_token: "token"`, `htb_bearer_token: ""`, 1)
			},
			wantErr: "htb_bearer_token",
		},
		{
			name: "no feeds enabled",
			mutate: func(c string) string {
				return strings.Replace(c, "enabled: true", "enabled: false", 1)
			},
			wantErr: "no feeds enabled",
		},
		{
			name: "enabled feed without steps",
			mutate: func(c string) string {
				return strings.Replace(c, "send_announcements: true", "send_announcements: false", 1)
			},
			wantErr: "all delivery steps are disabled",
		},
		{
			name: "announcements without channel",
			mutate: func(c string) string {
				return strings.Replace(c, `notices_channel_id: "100"`, `notices_channel_id: ""`, 1)
			},
			wantErr: "no announcement channel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.mutate(minimalConfig)))
			if err == nil {
				t.Fatalf("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestGenerateSample_ProducesLoadableTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	if err := GenerateSample(path); err != nil {
		t.Fatalf("GenerateSample returned error: %v", err)
	}

	// The template must load once its required variables are present.
	for _, v := range []string{"HTB_BEARER_TOKEN", "DISCORD_TOKEN", "DISCORD_GUILD_ID",
		"MACHINES_CHANNEL_ID", "MACHINES_FORUM_CHANNEL_ID", "MACHINES_VOICE_CHANNEL_ID",
		"CHALLENGES_CHANNEL_ID", "CHALLENGES_FORUM_CHANNEL_ID", "CHALLENGES_VOICE_CHANNEL_ID",
		"NOTICES_CHANNEL_ID"} {
		t.Setenv(v, "placeholder")
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Generated sample failed to load: %v", err)
	}
	if len(config.EnabledKinds()) != 3 {
		t.Errorf("Sample should enable all three feeds, got %v", config.EnabledKinds())
	}
}

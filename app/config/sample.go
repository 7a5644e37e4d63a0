package config

import (
	"fmt"
	"os"
)

const sampleConfig = `# htb-relay service configuration.
# Dollar-brace environment variable references are substituted at load
# time; a ":-default" suffix falls back when the variable is unset.

api:
  htb_bearer_token: "${HTB_BEARER_TOKEN}"
  discord_token: "${DISCORD_TOKEN}"
  # Optional Linkwarden archival of announced item links.
  linkwarden_url: "${LINKWARDEN_API_URL:-}"
  linkwarden_token: "${LINKWARDEN_TOKEN:-}"
  linkwarden_collection: "HTB Releases"

discord:
  guild_id: "${DISCORD_GUILD_ID}"
  channels:
    machines_channel_id: "${MACHINES_CHANNEL_ID}"
    machines_forum_channel_id: "${MACHINES_FORUM_CHANNEL_ID}"
    machines_voice_channel_id: "${MACHINES_VOICE_CHANNEL_ID}"
    challenges_channel_id: "${CHALLENGES_CHANNEL_ID}"
    challenges_forum_channel_id: "${CHALLENGES_FORUM_CHANNEL_ID}"
    challenges_voice_channel_id: "${CHALLENGES_VOICE_CHANNEL_ID}"
    notices_channel_id: "${NOTICES_CHANNEL_ID}"

feeds:
  machines:
    enabled: true
    poll_interval: 600  # seconds
    send_announcements: true
    create_forum_threads: true
    create_events: true
    max_attempts: 10
    timeout: 30
  challenges:
    enabled: true
    poll_interval: 600
    send_announcements: true
    create_forum_threads: true
    create_events: true
    max_attempts: 10
    timeout: 30
  notices:
    enabled: true
    poll_interval: 60
    send_announcements: true
    max_attempts: 10
    timeout: 30
`

// GenerateSample writes the sample configuration template to path.
func GenerateSample(path string) error {
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write sample config: %w", err)
	}
	return nil
}

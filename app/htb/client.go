package htb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/htbwatch/htb-relay/app/feed"
)

const DefaultBaseURL = "https://labs.hackthebox.com"

// Sentinel errors the scheduler distinguishes for backoff and abort policy.
var (
	// ErrRateLimited marks a 429 so the scheduler can back off the one
	// affected feed without touching the others.
	ErrRateLimited = errors.New("htb: rate limited")
	// ErrUnauthorized marks a 401/403; the cycle aborts and the scheduler
	// waits a full poll interval since retrying cannot help.
	ErrUnauthorized = errors.New("htb: unauthorized")
)

// Client polls the HTB v4 API. Transient errors are returned, not retried;
// retry policy lives in the scheduler.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL, token, userAgent string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		userAgent:  userAgent,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Fetch returns the current item list for one feed kind together with the
// new poll marker. The HTB endpoints return the full current set, so a
// stale marker yields a superset and never an error; the change detector
// does the final filter.
func (c *Client) Fetch(ctx context.Context, kind feed.Kind, since *time.Time) ([]feed.Item, time.Time, error) {
	marker := c.now().UTC()

	var items []feed.Item
	var err error
	switch kind {
	case feed.KindMachines:
		items, err = c.fetchMachines(ctx)
	case feed.KindChallenges:
		items, err = c.fetchChallenges(ctx)
	case feed.KindNotices:
		items, err = c.fetchNotices(ctx, marker)
	default:
		return nil, time.Time{}, fmt.Errorf("unknown feed kind: %q", kind)
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	return items, marker, nil
}

func (c *Client) fetchMachines(ctx context.Context) ([]feed.Item, error) {
	var resp machinesResponse
	if err := c.get(ctx, "/api/v4/machine/unreleased", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch machines: %w", err)
	}

	items := make([]feed.Item, 0, len(resp.Data))
	for _, m := range resp.Data {
		if m.ID == 0 || m.Name == "" {
			slog.Warn("Skipping malformed machine payload", "id", m.ID, "name", m.Name)
			continue
		}

		item := feed.Item{
			Kind:       feed.KindMachines,
			ID:         m.ID,
			Name:       m.Name,
			OS:         m.OS,
			Difficulty: m.DifficultyText,
			AvatarURL:  c.baseURL + m.Avatar,
			URL:        "https://app.hackthebox.com/machines/" + m.Name,
			ReleaseAt:  parseReleaseTime(m.Release),
		}
		if len(m.FirstCreator) > 0 {
			item.Creator = m.FirstCreator[0].Name
		}
		if m.Retiring != nil {
			item.Retiring = fmt.Sprintf("%s (%s) - %s", m.Retiring.Name, m.Retiring.DifficultyText, m.Retiring.OS)
		}
		items = append(items, item)
	}

	return items, nil
}

func (c *Client) fetchChallenges(ctx context.Context) ([]feed.Item, error) {
	var resp challengesResponse
	if err := c.get(ctx, "/api/v4/challenges?state=unreleased", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch challenges: %w", err)
	}

	items := make([]feed.Item, 0, len(resp.Data))
	for _, ch := range resp.Data {
		if ch.ID == 0 || ch.Name == "" {
			slog.Warn("Skipping malformed challenge payload", "id", ch.ID, "name", ch.Name)
			continue
		}

		items = append(items, feed.Item{
			Kind:       feed.KindChallenges,
			ID:         ch.ID,
			Name:       ch.Name,
			Category:   ch.CategoryName,
			Difficulty: ch.Difficulty,
			URL:        "https://app.hackthebox.com/challenges/" + ch.Name,
			ReleaseAt:  parseReleaseTime(ch.ReleaseDate),
		})
	}

	return items, nil
}

func (c *Client) fetchNotices(ctx context.Context, seenAt time.Time) ([]feed.Item, error) {
	var resp noticesResponse
	if err := c.get(ctx, "/api/v4/notices", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch notices: %w", err)
	}

	items := make([]feed.Item, 0, len(resp.Data))
	for _, n := range resp.Data {
		item := feed.Item{
			Kind:       feed.KindNotices,
			ID:         n.ID,
			Name:       noticeSubject(n.URL),
			URL:        n.URL,
			NoticeType: n.Type,
			Message:    n.Message,
		}
		// Some notices carry no stable ID; fall back to the content hash.
		if item.ID == 0 {
			item.Hash = feed.ContentHash(n.Type, n.URL, n.Message, seenAt)
		}
		items = append(items, item)
	}

	return items, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", path, ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", path, ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// noticeSubject derives a display name from the notice URL, which usually
// points at the affected machine.
func noticeSubject(url string) string {
	if url == "" {
		return "N/A"
	}
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			if i == len(url)-1 {
				return "N/A"
			}
			return url[i+1:]
		}
	}
	return url
}

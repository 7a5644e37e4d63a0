// Package linkwarden archives item links into a Linkwarden instance. Like
// enrichment, archival is best-effort and never blocks a delivery.
package linkwarden

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	baseURL    string
	token      string
	collection string
	httpClient *http.Client
}

func NewClient(baseURL, token, collection string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		collection: collection,
		httpClient: httpClient,
	}
}

type archiveRequest struct {
	URL        string             `json:"url"`
	Name       string             `json:"name,omitempty"`
	Collection *archiveCollection `json:"collection,omitempty"`
}

type archiveCollection struct {
	Name string `json:"name"`
}

// Archive stores one link. Linkwarden dedupes by URL on its side, so
// repeated calls for the same link are harmless.
func (c *Client) Archive(ctx context.Context, url, name string) error {
	payload := archiveRequest{URL: url, Name: name}
	if c.collection != "" {
		payload.Collection = &archiveCollection{Name: c.collection}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode archive request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/links", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("archive request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("archive HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	return nil
}

// Package alert posts internal order notifications to a Discord channel.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	ColorGreen = 0x22c55e
	ColorGrey  = 0x6b7280
	ColorRed   = 0xef4444

	defaultUsername = "AfroBirthday"
)

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
}

type Message struct {
	Content  string  `json:"content,omitempty"`
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

// DiscordClient posts to one incoming webhook URL.
type DiscordClient struct {
	webhookURL string
	httpClient *http.Client
	now        func() time.Time
}

func NewDiscordClient(webhookURL string, httpClient *http.Client) *DiscordClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &DiscordClient{
		webhookURL: webhookURL,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Send posts msg. Embeds without a timestamp get the current time.
func (c *DiscordClient) Send(ctx context.Context, msg Message) error {
	if c == nil || c.webhookURL == "" {
		return nil
	}
	if msg.Username == "" {
		msg.Username = defaultUsername
	}
	for i := range msg.Embeds {
		if msg.Embeds[i].Timestamp == "" {
			msg.Embeds[i].Timestamp = c.now().UTC().Format(time.RFC3339)
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode discord message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post discord webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("discord webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

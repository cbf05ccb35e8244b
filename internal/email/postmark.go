package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const postmarkBaseURL = "https://api.postmarkapp.com"

type PostmarkProvider struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	MessageID string `json:"MessageID"`
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	TextBody      string `json:"TextBody,omitempty"`
	HtmlBody      string `json:"HtmlBody,omitempty"`
	Tag           string `json:"Tag,omitempty"`
	MessageStream string `json:"MessageStream"`
}

// NewPostmarkProvider builds a Postmark sender. httpClient may be nil.
func NewPostmarkProvider(apiKey, from string, httpClient *http.Client) *PostmarkProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &PostmarkProvider{
		apiKey:     apiKey,
		from:       from,
		baseURL:    postmarkBaseURL,
		httpClient: httpClient,
	}
}

func (p *PostmarkProvider) SendEmail(ctx context.Context, email *Email) error {
	if email == nil {
		return fmt.Errorf("email is required")
	}

	payload, err := json.Marshal(postmarkEmail{
		From:          p.from,
		To:            email.To,
		Subject:       email.Subject,
		TextBody:      email.Text,
		HtmlBody:      email.HTML,
		Tag:           email.Tag,
		MessageStream: "outbound",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	body, status, err := p.call(ctx, http.MethodPost, "/email", payload)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	var result postmarkResponse
	if jsonErr := json.Unmarshal(body, &result); jsonErr != nil {
		if status != http.StatusOK {
			return fmt.Errorf("postmark API returned status %d: %s", status, string(body))
		}
		return fmt.Errorf("failed to parse response: %w", jsonErr)
	}
	if status != http.StatusOK || result.ErrorCode != 0 {
		return fmt.Errorf("postmark error (%d): %s", result.ErrorCode, result.Message)
	}
	return nil
}

func (p *PostmarkProvider) ValidateAPIKey(ctx context.Context) error {
	body, status, err := p.call(ctx, http.MethodGet, "/server", nil)
	if err != nil {
		return fmt.Errorf("failed to validate API key: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("invalid API key: received status %d: %s", status, string(body))
	}
	return nil
}

func (p *PostmarkProvider) call(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read postmark response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Package companion is the HTTP client of the companion backend. The backend
// owns all intelligence: chat completion, image generation, proactive timing
// and the public personality registry.
package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/set-night/companionbot/internal/domain"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the backend at baseURL (without the /api prefix).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Personalities lists the built-in personalities.
func (c *Client) Personalities(ctx context.Context) ([]domain.Personality, error) {
	return c.personalityList(ctx, "/personalities")
}

func (c *Client) PublicPersonalities(ctx context.Context, filter domain.PublicFilter) ([]domain.Personality, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Gender != "" {
		q.Set("gender", filter.Gender)
	}
	if len(filter.Tags) > 0 {
		q.Set("tags", strings.Join(filter.Tags, ","))
	}

	path := "/personalities/public"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.personalityList(ctx, path)
}

func (c *Client) UserPersonalities(ctx context.Context, userID string) ([]domain.Personality, error) {
	return c.personalityList(ctx, "/personalities/user/"+url.PathEscape(userID))
}

func (c *Client) Tags(ctx context.Context) (domain.TagTaxonomy, error) {
	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/personalities/tags", nil, &raw); err != nil {
		return nil, err
	}
	if nested, ok := raw["tags"]; ok && len(nested) > 0 && nested[0] == '{' {
		raw = nil
		if err := json.Unmarshal(nested, &raw); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}

	taxonomy := make(domain.TagTaxonomy, len(raw))
	for category, value := range raw {
		var tags []string
		if err := json.Unmarshal(value, &tags); err != nil {
			continue
		}
		taxonomy[category] = tags
	}
	return taxonomy, nil
}

// Publish copies a custom personality into the backend's public registry.
func (c *Client) Publish(ctx context.Context, p domain.Personality, creatorID string) (*domain.Personality, error) {
	var published domain.Personality
	req := PublishRequest{Personality: p, CreatorID: creatorID}
	if err := c.do(ctx, http.MethodPost, "/personalities/public", req, &published); err != nil {
		return nil, err
	}
	if published.ID == "" {
		published = p
	}
	return &published, nil
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (*Reply, error) {
	return c.reply(ctx, "/chat", req)
}

func (c *Client) ProactiveMessage(ctx context.Context, req ProactiveRequest) (*Reply, error) {
	if req.ConversationHistory == nil {
		req.ConversationHistory = []ChatMessage{}
	}
	return c.reply(ctx, "/proactive_message", req)
}

func (c *Client) OpeningMessage(ctx context.Context, req OpeningRequest) (*Reply, error) {
	if req.Messages == nil {
		req.Messages = []ChatMessage{}
	}
	return c.reply(ctx, "/opening_message", req)
}

// ShouldSendProactive asks whether enough idle time has passed since lastMessage.
func (c *Client) ShouldSendProactive(ctx context.Context, personalityID string, lastMessage time.Time) (bool, error) {
	q := url.Values{}
	q.Set("last_message_time", lastMessage.UTC().Format("2006-01-02T15:04:05.000Z"))
	path := "/should_send_proactive/" + url.PathEscape(personalityID) + "?" + q.Encode()

	var result struct {
		ShouldSend bool `json:"should_send"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return false, err
	}
	return result.ShouldSend, nil
}

func (c *Client) reply(ctx context.Context, path string, body any) (*Reply, error) {
	var r Reply
	if err := c.do(ctx, http.MethodPost, path, body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// personalityList accepts both {"personalities": [...]} and a bare array.
func (c *Client) personalityList(ctx context.Context, path string) ([]domain.Personality, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var list []domain.Personality
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("parse personalities: %w", err)
		}
		return list, nil
	}

	var wrapped struct {
		Personalities []domain.Personality `json:"personalities"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("parse personalities: %w", err)
	}
	return wrapped.Personalities, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Package wireposts is a thin client for the wireposts social platform
// API. Caller-scoped endpoints take a per-caller access token; public
// endpoints use the service API key.
package wireposts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const defaultBaseURL = "https://api.wireposts.net"

type Post struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Likes     int    `json:"likes"`
}

type Topic struct {
	Name      string `json:"name"`
	PostCount int    `json:"post_count"`
}

type Mention struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.apiKey) != ""
}

// SearchPosts queries public posts.
func (c *Client) SearchPosts(ctx context.Context, query string, limit int) ([]Post, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 5
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	var decoded struct {
		Posts []Post `json:"posts"`
	}
	if err := c.get(ctx, "/v1/posts/search?"+q.Encode(), c.apiKey, &decoded); err != nil {
		return nil, err
	}
	return decoded.Posts, nil
}

// TrendingTopics lists the currently trending topics.
func (c *Client) TrendingTopics(ctx context.Context, limit int) ([]Topic, error) {
	if limit <= 0 {
		limit = 10
	}
	var decoded struct {
		Topics []Topic `json:"topics"`
	}
	path := "/v1/topics/trending?limit=" + strconv.Itoa(limit)
	if err := c.get(ctx, path, c.apiKey, &decoded); err != nil {
		return nil, err
	}
	return decoded.Topics, nil
}

// ReadMentions lists recent mentions of the authenticated caller.
func (c *Client) ReadMentions(ctx context.Context, accessToken string, limit int) ([]Mention, error) {
	if limit <= 0 {
		limit = 5
	}
	var decoded struct {
		Mentions []Mention `json:"mentions"`
	}
	path := "/v1/me/mentions?limit=" + strconv.Itoa(limit)
	if err := c.get(ctx, path, accessToken, &decoded); err != nil {
		return nil, err
	}
	return decoded.Mentions, nil
}

// PublishPost creates a post as the authenticated caller.
func (c *Client) PublishPost(ctx context.Context, accessToken, text string) (Post, error) {
	if strings.TrimSpace(text) == "" {
		return Post{}, fmt.Errorf("text is required")
	}
	var decoded Post
	err := c.post(ctx, "/v1/me/posts", accessToken, map[string]string{"text": text}, &decoded)
	return decoded, err
}

// SendDirectMessage delivers a private message from the authenticated
// caller to another user.
func (c *Client) SendDirectMessage(ctx context.Context, accessToken, recipient, text string) error {
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is required")
	}
	return c.post(ctx, "/v1/me/messages", accessToken, map[string]string{
		"recipient": recipient,
		"text":      text,
	}, nil)
}

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return fmt.Errorf("wireposts error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

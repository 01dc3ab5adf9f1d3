// Package transcripts records call conversations in an external store.
// Everything here is best effort: a failed write never disturbs the call.
package transcripts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Roles for appended messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// CreateConversation opens a transcript record for one call and returns its
// identifier.
func (c *Client) CreateConversation(ctx context.Context, phoneNumber, callID string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("transcript store is not configured")
	}
	body, err := json.Marshal(map[string]string{
		"phone_number": phoneNumber,
		"call_id":      callID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.post(ctx, "/conversations", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", statusError("create conversation", resp)
	}
	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.ID == "" {
		return "", fmt.Errorf("create conversation: empty id")
	}
	return decoded.ID, nil
}

// AppendMessage stores one utterance. Empty text is skipped.
func (c *Client) AppendMessage(ctx context.Context, conversationID, role, text string) error {
	if !c.Configured() {
		return fmt.Errorf("transcript store is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{
		"role": role,
		"text": text,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.post(ctx, "/conversations/"+conversationID+"/messages", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("append message", resp)
	}
	return nil
}

// EndConversation marks the transcript finished.
func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	if !c.Configured() {
		return fmt.Errorf("transcript store is not configured")
	}
	resp, err := c.post(ctx, "/conversations/"+conversationID+"/end", []byte("{}"))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError("end conversation", resp)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	return fmt.Errorf("%s (status %d): %s", op, resp.StatusCode, strings.TrimSpace(string(b)))
}

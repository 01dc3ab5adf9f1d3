// Package identity resolves a caller's phone number to a linked platform
// account. Resolution is best effort: any failure yields an unauthenticated
// caller, never a failed call.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Identity describes the caller as known to the account-linking service.
type Identity struct {
	Authenticated  bool
	AccessToken    string
	PlatformUserID string
	DisplayName    string
}

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

// Lookup resolves the caller's number. A nil Identity with a nil error means
// the caller is unknown; transport and decode failures are returned so the
// caller can log them, but sessions treat every failure as unauthenticated.
func (c *Client) Lookup(ctx context.Context, phoneNumber string) (*Identity, error) {
	if !c.Configured() {
		return nil, nil
	}
	if strings.TrimSpace(phoneNumber) == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s/identities?phone=%s", c.baseURL, url.QueryEscape(phoneNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("identity error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded struct {
		AccessToken    string `json:"access_token"`
		PlatformUserID string `json:"platform_user_id"`
		DisplayName    string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.AccessToken == "" {
		return nil, nil
	}
	return &Identity{
		Authenticated:  true,
		AccessToken:    decoded.AccessToken,
		PlatformUserID: decoded.PlatformUserID,
		DisplayName:    decoded.DisplayName,
	}, nil
}

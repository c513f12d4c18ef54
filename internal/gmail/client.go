// Package gmail is a minimal client for the Gmail message-send endpoint.
// It consumes an opaque bearer token supplied by the caller; token
// acquisition and refresh happen elsewhere.
package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/certforge/certmailer/internal/pkg/httpretry"
)

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// Client sends raw messages through the Gmail API on behalf of the
// authenticated user.
type Client struct {
	baseURL    string
	httpClient httpretry.HTTPDoer
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Gmail API base URL. Used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithTimeout overrides the default 30s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if hc, ok := c.httpClient.(*http.Client); ok && d > 0 {
			hc.Timeout = d
		}
	}
}

// WithTransientRetry wraps the client's transport with bounded retry on
// 429/5xx responses and transient network errors. Off by default: a send
// is normally attempted exactly once and failures are reported to the
// caller as-is.
func WithTransientRetry(maxRetries int) Option {
	return func(c *Client) { c.httpClient = httpretry.NewRetryClient(c.httpClient, maxRetries) }
}

// NewClient creates a Gmail client from an opaque bearer token.
func NewClient(token string, opts ...Option) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = 30 * time.Second

	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts one already-composed raw message. It does not retry (unless
// the client was built with WithTransientRetry) and does not classify
// failures; the provider either accepted the whole message or it didn't.
func (c *Client) Send(ctx context.Context, raw string) error {
	payload, err := json.Marshal(map[string]string{"raw": raw})
	if err != nil {
		return fmt.Errorf("marshaling send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/users/me/messages/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return fmt.Errorf("%s", apiErrorMessage(resp))
}

// apiErrorMessage pulls a human-readable message out of a Gmail error
// response body, falling back to the bare status code.
func apiErrorMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return fmt.Sprintf("gmail API error: %d", resp.StatusCode)
}

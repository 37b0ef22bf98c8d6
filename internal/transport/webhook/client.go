package webhook

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

	"github.com/mattjoyce/herald/internal/transport"
)

const maxErrorBody = 512

// SendRequest is the body of POST <send_url>/send.
type SendRequest struct {
	ChatID  string                `json:"chat_id"`
	Content transport.Content     `json:"content"`
	Options transport.SendOptions `json:"options"`
}

// Client calls the bridge's outbound HTTP endpoints.
type Client struct {
	baseURL string
	secret  string
	header  string
	http    *http.Client
}

// NewClient creates a client. httpClient may be nil.
func NewClient(baseURL, secret, header string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if header == "" {
		header = DefaultSignatureHeader
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		header:  header,
		http:    httpClient,
	}
}

// SendMessage posts one outbound message.
func (c *Client) SendMessage(ctx context.Context, chatID string, content transport.Content, opts transport.SendOptions) error {
	body, err := json.Marshal(SendRequest{ChatID: chatID, Content: content, Options: opts})
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/send", body, nil)
}

// GroupMetadata fetches the participants of a group.
func (c *Client) GroupMetadata(ctx context.Context, chatID string) (*transport.GroupMetadata, error) {
	var meta transport.GroupMetadata
	if err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(chatID), nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Chats lists the chats the bridge knows about.
func (c *Client) Chats(ctx context.Context) ([]transport.Chat, error) {
	var chats []transport.Chat
	if err := c.do(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(c.header, Sign(body, c.secret))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: bridge returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

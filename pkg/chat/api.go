package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

type BacklogSource interface {
	Messages(ctx context.Context) ([]ArchivedMessage, error)
}

type Persister interface {
	Save(ctx context.Context, m ArchivedMessage) error
}

// NotificationSource performs one long-poll request. The bool is false when
// the server answered with a 2xx status and no body.
type NotificationSource interface {
	Notification(ctx context.Context) (Notification, bool, error)
}

type PresenceSource interface {
	UserCount(ctx context.Context) (int, error)
}

// Client talks to the pull endpoints of the relay.
type Client struct {
	baseUrl *url.URL
	http    *http.Client
}

func NewClient(baseUrl string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseUrl)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseUrl: u, http: httpClient}, nil
}

func (c *Client) Messages(ctx context.Context) ([]ArchivedMessage, error) {
	var out struct {
		Messages []ArchivedMessage `json:"messages"`
	}
	if _, err := c.getJSON(ctx, "messages", &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) Save(ctx context.Context, m ArchivedMessage) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl.JoinPath("save").String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return &StatusError{Op: "save", Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) Notification(ctx context.Context) (Notification, bool, error) {
	var out struct {
		Notification json.RawMessage `json:"notification"`
	}
	hasBody, err := c.getJSON(ctx, "notification", &out)
	if err != nil {
		return nil, false, err
	}
	if !hasBody {
		return nil, false, nil
	}
	return Notification(out.Notification), true, nil
}

func (c *Client) UserCount(ctx context.Context) (int, error) {
	var out struct {
		UserCount *int `json:"userCount"`
	}
	if _, err := c.getJSON(ctx, "userCount", &out); err != nil {
		return 0, err
	}
	if out.UserCount == nil {
		return 0, fmt.Errorf("failed to read user count: missing userCount")
	}
	if *out.UserCount < 0 {
		return 0, fmt.Errorf("failed to read user count: negative value %d", *out.UserCount)
	}
	return *out.UserCount, nil
}

// getJSON decodes the body of any 2xx response into out. It reports false,
// leaving out untouched, when the response carried no body.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl.JoinPath(path).String(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return false, &StatusError{Op: "get " + path, Code: resp.StatusCode}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read body from %s: %w", path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode body from %s: %w", path, err)
	}
	return true, nil
}

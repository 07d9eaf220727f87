// Package agent talks to the automation gateway that runs remote agent
// sessions. The agent, not this service, generates and deploys the site.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrDispatch marks a failed session spawn.
	ErrDispatch = errors.New("agent dispatch failed")
	// ErrTransientPoll marks a single failed fetch; callers retry on the next tick.
	ErrTransientPoll = errors.New("agent poll failed")
)

const maxResponseBytes = 1 << 20

// SpawnRequest is the body of a session spawn call.
type SpawnRequest struct {
	Task           string `json:"task"`
	Label          string `json:"label"`
	TimeoutSeconds int    `json:"runTimeoutSeconds"`
}

type spawnResponse struct {
	SessionKey string `json:"sessionKey"`
}

type historyRequest struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type historyResponse struct {
	Messages []message `json:"messages"`
}

// Client is an HTTP client for the gateway session API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a gateway client. Zero timeout falls back to 15s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Spawn starts a remote agent session and returns its reference.
func (c *Client) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	var resp spawnResponse
	if err := c.post(ctx, "/api/sessions/spawn", req, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDispatch, err)
	}
	if resp.SessionKey == "" {
		return "", fmt.Errorf("%w: empty session reference", ErrDispatch)
	}
	return resp.SessionKey, nil
}

// FetchLatest returns the text of the most recent message in the session.
// An empty string means the session has produced nothing yet.
func (c *Client) FetchLatest(ctx context.Context, sessionRef string) (string, error) {
	var resp historyResponse
	if err := c.post(ctx, "/api/sessions/history", historyRequest{SessionKey: sessionRef, Limit: 1}, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransientPoll, err)
	}
	if len(resp.Messages) == 0 {
		return "", nil
	}
	return messageText(resp.Messages[len(resp.Messages)-1].Content), nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("call %s: status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// messageText flattens either a plain string or a list of content blocks.
func messageText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, block := range v {
			if m, ok := block.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

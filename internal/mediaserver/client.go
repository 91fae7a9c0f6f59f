package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const tokenHeader = "X-Api-Token"

// Client fetches live session snapshots from the remote media server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a media server client. Timeout applies per snapshot fetch.
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type sessionsResponse struct {
	Sessions []RawSession `json:"sessions"`
}

// ListActiveSessions returns the point-in-time list of active streams.
// Failures return a *SourceError; an empty slice always means genuinely zero sessions.
func (c *Client) ListActiveSessions(ctx context.Context) ([]RawSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/sessions", nil)
	if err != nil {
		return nil, &SourceError{Op: "list sessions", Err: err}
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &SourceError{Op: "list sessions", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Op: "list sessions", StatusCode: resp.StatusCode}
	}

	var body sessionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &SourceError{Op: "decode sessions", Err: err}
	}
	return body.Sessions, nil
}

// Ping verifies connectivity to the media server.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/status", nil)
	if err != nil {
		return fmt.Errorf("ping request: %w", err)
	}
	req.Header.Set(tokenHeader, c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping status: %d", resp.StatusCode)
	}
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WebhookAgent delivers notifications as a JSON POST to a configured URL.
type WebhookAgent struct {
	id   string
	url  string
	http *http.Client
}

// NewWebhookAgent creates a webhook sink. Per-attempt timeouts come from the
// dispatcher's context.
func NewWebhookAgent(id, url string) *WebhookAgent {
	return &WebhookAgent{id: id, url: url, http: http.DefaultClient}
}

func (a *WebhookAgent) ID() string   { return a.id }
func (a *WebhookAgent) Kind() string { return "webhook" }

// Deliver posts the payload. A non-2xx response is an *AgentError.
func (a *WebhookAgent) Deliver(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &AgentError{StatusCode: resp.StatusCode}
	}
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const webhookTimeout = 5 * time.Second

// WebhookDispatcher POSTs events as JSON to a single webhook URL.
type WebhookDispatcher struct {
	http *http.Client
	url  string
}

// NewWebhookDispatcher creates a dispatcher for the given URL.
func NewWebhookDispatcher(url string) *WebhookDispatcher {
	return &WebhookDispatcher{
		http: &http.Client{Timeout: webhookTimeout},
		url:  url,
	}
}

type webhookEnvelope struct {
	Kind    string    `json:"kind"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

// Dispatch sends one event. Any non-2xx response is an error.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, kind string, payload any) error {
	body, err := json.Marshal(webhookEnvelope{Kind: kind, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request %s: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s: status %d: %s", kind, resp.StatusCode, data)
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookDispatch(t *testing.T) {
	var got webhookEnvelope
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal body: %v", err)
		}
	}))
	defer ts.Close()

	d := NewWebhookDispatcher(ts.URL)
	err := d.Dispatch(context.Background(), "escalation.red", map[string]any{"count": 2})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.Kind != "escalation.red" {
		t.Errorf("kind = %q, want escalation.red", got.Kind)
	}
}

func TestWebhookDispatchErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer ts.Close()

	d := NewWebhookDispatcher(ts.URL)
	if err := d.Dispatch(context.Background(), "escalation.summary", nil); err == nil {
		t.Fatal("expected error on 502 response")
	}
}

func TestMultiDispatchesAll(t *testing.T) {
	calls := 0
	counter := dispatcherFunc(func(context.Context, string, any) error {
		calls++
		return nil
	})
	failing := dispatcherFunc(func(context.Context, string, any) error {
		return context.DeadlineExceeded
	})

	m := Multi{counter, failing, counter}
	if err := m.Dispatch(context.Background(), "k", nil); err == nil {
		t.Error("expected joined error from failing dispatcher")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (later dispatchers still run)", calls)
	}
}

type dispatcherFunc func(context.Context, string, any) error

func (f dispatcherFunc) Dispatch(ctx context.Context, kind string, payload any) error {
	return f(ctx, kind, payload)
}

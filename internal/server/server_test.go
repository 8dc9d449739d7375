package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vigilhq/vigil/internal/energy"
	"github.com/vigilhq/vigil/internal/escalate"
	"github.com/vigilhq/vigil/internal/guardian"
	"github.com/vigilhq/vigil/internal/store"
)

type noLuck struct{}

func (noLuck) Float64() float64 { return 0.99 }

type firstStyle struct{}

func (firstStyle) Intn(n int) int { return 0 }

func testServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := energy.DefaultConfig()
	cfg.LuckyProbability = 0
	ledger := energy.NewLedger(db, cfg, noLuck{})
	engine := guardian.NewEngine(db, ledger, guardian.DefaultCurseThresholds(), nil, firstStyle{})

	scanCfg := escalate.DefaultConfig()
	scanCfg.DispatchDelay = 0
	classifier := escalate.NewClassifier(db, nil, scanCfg)

	return New(db, engine, ledger, classifier, "test-version"), db
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["db"] != true {
		t.Errorf("db = %v, want true", body["db"])
	}
}

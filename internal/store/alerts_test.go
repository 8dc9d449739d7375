package store

import (
	"testing"
)

func TestAlertLog(t *testing.T) {
	db := testDB(t)

	at, err := db.LastNotifiedAt("m-001", "red")
	if err != nil {
		t.Fatalf("LastNotifiedAt: %v", err)
	}
	if at != nil {
		t.Errorf("expected nil before any notification, got %d", *at)
	}

	if err := db.MarkNotified("m-001", "red", 1000); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	at, _ = db.LastNotifiedAt("m-001", "red")
	if at == nil || *at != 1000 {
		t.Fatalf("LastNotifiedAt = %v, want 1000", at)
	}

	// Upsert on re-notification.
	if err := db.MarkNotified("m-001", "red", 2000); err != nil {
		t.Fatalf("MarkNotified upsert: %v", err)
	}
	at, _ = db.LastNotifiedAt("m-001", "red")
	if at == nil || *at != 2000 {
		t.Fatalf("LastNotifiedAt after upsert = %v, want 2000", at)
	}

	// Tiers are tracked independently.
	at, _ = db.LastNotifiedAt("m-001", "yellow")
	if at != nil {
		t.Errorf("yellow should be untracked, got %d", *at)
	}

	if err := db.ClearAlerts("m-001"); err != nil {
		t.Fatalf("ClearAlerts: %v", err)
	}
	at, _ = db.LastNotifiedAt("m-001", "red")
	if at != nil {
		t.Errorf("expected nil after clear, got %d", *at)
	}
}

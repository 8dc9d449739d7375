package store

import (
	"database/sql"
	"fmt"
)

// LastNotifiedAt returns when the member was last notified at the given tier,
// or nil if never.
func (db *DB) LastNotifiedAt(memberID, tier string) (*int64, error) {
	var at int64
	err := db.QueryRow(`
		SELECT notified_at FROM alert_log WHERE member_id = ? AND tier = ?
	`, memberID, tier).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last notified: %w", err)
	}
	return &at, nil
}

// MarkNotified records that the member was notified at the given tier.
func (db *DB) MarkNotified(memberID, tier string, at int64) error {
	_, err := db.Exec(`
		INSERT INTO alert_log (member_id, tier, notified_at) VALUES (?, ?, ?)
		ON CONFLICT (member_id, tier) DO UPDATE SET notified_at = excluded.notified_at
	`, memberID, tier, at)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// ClearAlerts removes all alert bookkeeping for a member. Called when the
// member reports again so the next lapse is treated as a fresh tier entry.
func (db *DB) ClearAlerts(memberID string) error {
	if _, err := db.Exec("DELETE FROM alert_log WHERE member_id = ?", memberID); err != nil {
		return fmt.Errorf("clear alerts: %w", err)
	}
	return nil
}

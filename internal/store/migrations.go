package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "profiles: member engagement profiles",
		SQL: `
CREATE TABLE profiles (
    member_id         TEXT PRIMARY KEY,
    display_name      TEXT NOT NULL DEFAULT '',
    last_report_at    INTEGER,
    streak            INTEGER NOT NULL DEFAULT 0 CHECK (streak >= 0),
    total_reports     INTEGER NOT NULL DEFAULT 0 CHECK (total_reports >= 0),
    energy_balance    INTEGER NOT NULL DEFAULT 0 CHECK (energy_balance >= 0),
    guardian_stage    INTEGER NOT NULL DEFAULT 0 CHECK (guardian_stage >= 0),
    evolution_style   TEXT NOT NULL DEFAULT '',
    unlocked_at       INTEGER,
    last_evolved_at   INTEGER,
    cadence_anchor_at INTEGER,
    version           INTEGER NOT NULL DEFAULT 1,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
);

CREATE INDEX idx_profiles_last_report ON profiles(last_report_at);
`,
	},
	{
		Version:     2,
		Description: "energy_transactions: append-only energy ledger",
		SQL: `
CREATE TABLE energy_transactions (
    id          INTEGER PRIMARY KEY,
    member_id   TEXT NOT NULL,
    amount      INTEGER NOT NULL,
    kind        TEXT NOT NULL CHECK (kind IN ('earn', 'spend')),
    source_type TEXT NOT NULL,
    source_id   TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,
    CHECK ((kind = 'earn' AND amount > 0) OR (kind = 'spend' AND amount < 0)),

    FOREIGN KEY (member_id) REFERENCES profiles(member_id)
);

CREATE UNIQUE INDEX idx_tx_earn_source ON energy_transactions(member_id, source_type, source_id)
    WHERE kind = 'earn';
CREATE INDEX idx_tx_member ON energy_transactions(member_id, created_at DESC);
`,
	},
	{
		Version:     3,
		Description: "alert_log: last notification per member and tier",
		SQL: `
CREATE TABLE alert_log (
    member_id   TEXT NOT NULL,
    tier        TEXT NOT NULL CHECK (tier IN ('yellow', 'orange', 'red')),
    notified_at INTEGER NOT NULL,

    PRIMARY KEY (member_id, tier)
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

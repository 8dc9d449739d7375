package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Profile is a member's engagement profile. Timestamps are unix milliseconds;
// nullable timestamps are nil until first set.
//
// EnergyBalance is owned by the ledger methods (AppendEarn, AppendSpend,
// ApplyReport) and is never written by UpdateProfile, so it always matches the
// transaction sum.
type Profile struct {
	MemberID        string
	DisplayName     string
	LastReportAt    *int64
	Streak          int
	TotalReports    int
	EnergyBalance   int64
	GuardianStage   int
	EvolutionStyle  string
	UnlockedAt      *int64
	LastEvolvedAt   *int64
	CadenceAnchorAt *int64
	Version         int64
	CreatedAt       int64
	UpdatedAt       int64
}

const profileColumns = `member_id, display_name, last_report_at, streak, total_reports,
	energy_balance, guardian_stage, evolution_style, unlocked_at, last_evolved_at,
	cadence_anchor_at, version, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.MemberID, &p.DisplayName, &p.LastReportAt, &p.Streak,
		&p.TotalReports, &p.EnergyBalance, &p.GuardianStage, &p.EvolutionStyle,
		&p.UnlockedAt, &p.LastEvolvedAt, &p.CadenceAnchorAt, &p.Version,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProfile registers a member. If the member already exists, the existing
// profile is returned unchanged (registration is idempotent).
func (db *DB) CreateProfile(memberID, displayName string) (*Profile, error) {
	existing, err := db.GetProfile(memberID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO profiles (member_id, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, memberID, displayName, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	return &Profile{
		MemberID:    memberID,
		DisplayName: displayName,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetProfile returns a profile by member id, or nil if none exists.
func (db *DB) GetProfile(memberID string) (*Profile, error) {
	p, err := scanProfile(db.QueryRow(
		"SELECT "+profileColumns+" FROM profiles WHERE member_id = ?", memberID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// UpdateProfile writes the engagement fields of a profile using optimistic
// concurrency: the write succeeds only if the stored version still matches
// p.Version. On success p.Version is incremented in place. A lost race
// returns ErrProfileConflict and the caller retries its whole operation.
//
// energy_balance is deliberately not written here; see the ledger methods.
func (db *DB) UpdateProfile(p *Profile) error {
	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		UPDATE profiles SET
			display_name = ?, last_report_at = ?, streak = ?, total_reports = ?,
			guardian_stage = ?, evolution_style = ?, unlocked_at = ?,
			last_evolved_at = ?, cadence_anchor_at = ?,
			version = version + 1, updated_at = ?
		WHERE member_id = ? AND version = ?
	`, p.DisplayName, p.LastReportAt, p.Streak, p.TotalReports,
		p.GuardianStage, p.EvolutionStyle, p.UnlockedAt,
		p.LastEvolvedAt, p.CadenceAnchorAt, now,
		p.MemberID, p.Version)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		exists, err := db.GetProfile(p.MemberID)
		if err != nil {
			return err
		}
		if exists == nil {
			return ErrUnknownMember
		}
		return ErrProfileConflict
	}

	p.Version++
	p.UpdatedAt = now
	return nil
}

// ListReportedProfiles returns every profile that has at least one report,
// ordered by member creation. Never-reported members are an onboarding state,
// not an escalation state, so they are excluded here.
func (db *DB) ListReportedProfiles() ([]Profile, error) {
	rows, err := db.Query(
		"SELECT " + profileColumns + " FROM profiles WHERE last_report_at IS NOT NULL ORDER BY created_at, member_id")
	if err != nil {
		return nil, fmt.Errorf("list reported profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// CountProfiles returns the total number of registered members.
func (db *DB) CountProfiles() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&n)
	return n, err
}

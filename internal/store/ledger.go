package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transaction kinds.
const (
	KindEarn  = "earn"
	KindSpend = "spend"
)

// EnergyTransaction is one immutable row in the energy ledger. Earn amounts
// are positive, spend amounts negative, so a member's balance is the plain
// sum of amounts.
type EnergyTransaction struct {
	ID         int64
	MemberID   string
	Amount     int64
	Kind       string
	SourceType string
	SourceID   string
	CreatedAt  int64
}

// AppendEarn records an earn transaction and bumps the member's balance in
// one SQL transaction. Idempotent per (source_type, source_id): a replay
// returns ErrDuplicateSource and leaves the ledger untouched.
func (db *DB) AppendEarn(memberID string, amount int64, sourceType, sourceID string) error {
	if amount <= 0 {
		return fmt.Errorf("earn amount must be positive, got %d", amount)
	}
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin earn: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM energy_transactions
		WHERE member_id = ? AND source_type = ? AND source_id = ? AND kind = 'earn'
	`, memberID, sourceType, sourceID).Scan(&count)
	if err != nil {
		return fmt.Errorf("check earn source: %w", err)
	}
	if count > 0 {
		return ErrDuplicateSource
	}

	if _, err := tx.Exec(`
		INSERT INTO energy_transactions (member_id, amount, kind, source_type, source_id, created_at)
		VALUES (?, ?, 'earn', ?, ?, ?)
	`, memberID, amount, sourceType, sourceID, now); err != nil {
		// Unique index backstop for a replay that raced the check above.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateSource
		}
		return fmt.Errorf("insert earn: %w", err)
	}

	result, err := tx.Exec(`
		UPDATE profiles SET energy_balance = energy_balance + ? WHERE member_id = ?
	`, amount, memberID)
	if err != nil {
		return fmt.Errorf("apply earn: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrUnknownMember
	}

	return tx.Commit()
}

// ApplyReport records a report earn and the caller's profile changes in one
// SQL transaction. The profile side uses the same optimistic version check as
// UpdateProfile, so a lost race returns ErrProfileConflict with the credit
// rolled back and the caller retries the whole submission from a fresh read.
// Idempotent per (source_type, source_id) like AppendEarn: with the credit and
// the profile write committing together, ErrDuplicateSource can only mean the
// submission was fully processed before. On success p.Version, p.UpdatedAt and
// p.EnergyBalance are updated in place.
func (db *DB) ApplyReport(p *Profile, amount int64, sourceType, sourceID string) error {
	if amount <= 0 {
		return fmt.Errorf("earn amount must be positive, got %d", amount)
	}
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin report: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM energy_transactions
		WHERE member_id = ? AND source_type = ? AND source_id = ? AND kind = 'earn'
	`, p.MemberID, sourceType, sourceID).Scan(&count)
	if err != nil {
		return fmt.Errorf("check earn source: %w", err)
	}
	if count > 0 {
		return ErrDuplicateSource
	}

	if _, err := tx.Exec(`
		INSERT INTO energy_transactions (member_id, amount, kind, source_type, source_id, created_at)
		VALUES (?, ?, 'earn', ?, ?, ?)
	`, p.MemberID, amount, sourceType, sourceID, now); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateSource
		}
		return fmt.Errorf("insert earn: %w", err)
	}

	result, err := tx.Exec(`
		UPDATE profiles SET
			display_name = ?, last_report_at = ?, streak = ?, total_reports = ?,
			guardian_stage = ?, evolution_style = ?, unlocked_at = ?,
			last_evolved_at = ?, cadence_anchor_at = ?,
			energy_balance = energy_balance + ?,
			version = version + 1, updated_at = ?
		WHERE member_id = ? AND version = ?
	`, p.DisplayName, p.LastReportAt, p.Streak, p.TotalReports,
		p.GuardianStage, p.EvolutionStyle, p.UnlockedAt,
		p.LastEvolvedAt, p.CadenceAnchorAt, amount, now,
		p.MemberID, p.Version)
	if err != nil {
		return fmt.Errorf("apply report: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Check existence on the transaction's own connection: a read
		// through the pool would land on a different connection, which
		// under an in-memory DSN is a different database entirely.
		var one int
		err := tx.QueryRow("SELECT 1 FROM profiles WHERE member_id = ?", p.MemberID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnknownMember
		}
		if err != nil {
			return fmt.Errorf("check profile: %w", err)
		}
		return ErrProfileConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit report: %w", err)
	}
	p.Version++
	p.UpdatedAt = now
	p.EnergyBalance += amount
	return nil
}

// AppendSpend records a spend transaction and decrements the member's balance
// in one SQL transaction. Fails with ErrInsufficientBalance if the spend
// exceeds the current balance; no partial deduction is ever applied.
func (db *DB) AppendSpend(memberID string, amount int64, sourceType string) error {
	if amount <= 0 {
		return fmt.Errorf("spend amount must be positive, got %d", amount)
	}
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin spend: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRow("SELECT energy_balance FROM profiles WHERE member_id = ?", memberID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnknownMember
	}
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if amount > balance {
		return ErrInsufficientBalance
	}

	if _, err := tx.Exec(`
		INSERT INTO energy_transactions (member_id, amount, kind, source_type, source_id, created_at)
		VALUES (?, ?, 'spend', ?, '', ?)
	`, memberID, -amount, sourceType, now); err != nil {
		return fmt.Errorf("insert spend: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE profiles SET energy_balance = energy_balance - ? WHERE member_id = ?
	`, amount, memberID); err != nil {
		return fmt.Errorf("apply spend: %w", err)
	}

	return tx.Commit()
}

// LedgerBalance recomputes a member's balance from the transaction sum.
// The profiles.energy_balance column must always agree with this value.
func (db *DB) LedgerBalance(memberID string) (int64, error) {
	var balance int64
	err := db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0) FROM energy_transactions WHERE member_id = ?
	`, memberID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}
	return balance, nil
}

// ListTransactions returns a member's most recent transactions, newest first.
func (db *DB) ListTransactions(memberID string, limit int) ([]EnergyTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, member_id, amount, kind, source_type, source_id, created_at
		FROM energy_transactions
		WHERE member_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []EnergyTransaction
	for rows.Next() {
		var t EnergyTransaction
		if err := rows.Scan(&t.ID, &t.MemberID, &t.Amount, &t.Kind, &t.SourceType, &t.SourceID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// Package energy is the earn/spend bookkeeping service over the energy ledger.
package energy

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/vigilhq/vigil/internal/store"
)

// Well-known transaction source types.
const (
	SourceReport     = "report"
	SourceInvestment = "investment"
	SourceMission    = "mission_reward"
)

// ErrInvalidInput rejects malformed credit/debit arguments before any mutation.
var ErrInvalidInput = errors.New("invalid input")

// ErrInsufficientBalance is returned when a debit exceeds the member's balance.
var ErrInsufficientBalance = store.ErrInsufficientBalance

// Rand is the randomness source for the lucky bonus. Injectable so tests can
// force both branches deterministically.
type Rand interface {
	Float64() float64
}

// Config tunes earning behavior.
type Config struct {
	BaseEarn         int64   // baseline amount for a report earn
	LuckyProbability float64 // chance of the lucky bonus per earning event
	LuckyMultiplier  int64   // flat multiplier applied to the base when lucky
	StreakCap        float64 // upper bound on the streak multiplier
}

// DefaultConfig returns the standard earning parameters.
func DefaultConfig() Config {
	return Config{
		BaseEarn:         10,
		LuckyProbability: 0.05,
		LuckyMultiplier:  10,
		StreakCap:        3.0,
	}
}

// Ledger applies earning rules and records transactions.
type Ledger struct {
	db  *store.DB
	cfg Config
	rng Rand
}

// NewLedger creates a Ledger. A nil rng falls back to a time-seeded source.
func NewLedger(db *store.DB, cfg Config, rng Rand) *Ledger {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Ledger{db: db, cfg: cfg, rng: rng}
}

// CreditResult describes the outcome of a credit.
type CreditResult struct {
	MemberID         string  `json:"member_id"`
	BaseAmount       int64   `json:"base_amount"`
	Amount           int64   `json:"amount"`
	StreakMultiplier float64 `json:"streak_multiplier"`
	IsLuckyBonus     bool    `json:"is_lucky_bonus"`
	Duplicate        bool    `json:"duplicate"`
}

// StreakMultiplier maps a consecutive-day streak to an earn multiplier:
// 1 + streak/10, capped.
func StreakMultiplier(streak int, cap float64) float64 {
	if streak < 0 {
		streak = 0
	}
	m := 1 + float64(streak)/10
	if cap > 0 && m > cap {
		m = cap
	}
	return m
}

// planCredit rolls the lucky bonus and applies the streak multiplier to a
// base amount, without touching the store.
func (l *Ledger) planCredit(memberID string, base int64, streak int) *CreditResult {
	res := &CreditResult{
		MemberID:         memberID,
		BaseAmount:       base,
		StreakMultiplier: StreakMultiplier(streak, l.cfg.StreakCap),
	}
	amount := base
	if l.rng.Float64() < l.cfg.LuckyProbability {
		res.IsLuckyBonus = true
		amount *= l.cfg.LuckyMultiplier
	}
	res.Amount = int64(math.Round(float64(amount) * res.StreakMultiplier))
	return res
}

// Credit records an earn of base amount for the member, applying the lucky
// bonus roll and then the streak multiplier. Idempotent per
// (sourceType, sourceID): a replay is a no-op success with Duplicate set and
// no balance change.
func (l *Ledger) Credit(memberID string, base int64, streak int, sourceType, sourceID string) (*CreditResult, error) {
	if memberID == "" || sourceType == "" || sourceID == "" {
		return nil, fmt.Errorf("%w: member, source type and source id required", ErrInvalidInput)
	}
	if base <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", ErrInvalidInput)
	}

	res := l.planCredit(memberID, base, streak)
	err := l.db.AppendEarn(memberID, res.Amount, sourceType, sourceID)
	if errors.Is(err, store.ErrDuplicateSource) {
		return &CreditResult{MemberID: memberID, BaseAmount: base, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreditReport credits the configured baseline for an activity report and
// commits the caller's profile changes in the same store transaction. A lost
// profile race surfaces as store.ErrProfileConflict with the credit rolled
// back, so the caller retries the whole submission from a fresh read; a
// replayed sourceID is a no-op success with Duplicate set and the profile
// untouched.
func (l *Ledger) CreditReport(p *store.Profile, streak int, sourceID string) (*CreditResult, error) {
	if p == nil || p.MemberID == "" || sourceID == "" {
		return nil, fmt.Errorf("%w: profile and source id required", ErrInvalidInput)
	}

	res := l.planCredit(p.MemberID, l.cfg.BaseEarn, streak)
	err := l.db.ApplyReport(p, res.Amount, SourceReport, sourceID)
	if errors.Is(err, store.ErrDuplicateSource) {
		return &CreditResult{MemberID: p.MemberID, BaseAmount: l.cfg.BaseEarn, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Debit records a spend. Fails with ErrInsufficientBalance when amount
// exceeds the member's balance; the balance never goes negative.
func (l *Ledger) Debit(memberID string, amount int64, sourceType string) error {
	if memberID == "" || sourceType == "" {
		return fmt.Errorf("%w: member and source type required", ErrInvalidInput)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: debit amount must be positive", ErrInvalidInput)
	}
	return l.db.AppendSpend(memberID, amount, sourceType)
}

// Balance returns the member's balance recomputed from the ledger.
func (l *Ledger) Balance(memberID string) (int64, error) {
	return l.db.LedgerBalance(memberID)
}

// History returns the member's most recent transactions, newest first.
func (l *Ledger) History(memberID string, limit int) ([]store.EnergyTransaction, error) {
	return l.db.ListTransactions(memberID, limit)
}

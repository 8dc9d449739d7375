package guardian

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/vigilhq/vigil/internal/energy"
	"github.com/vigilhq/vigil/internal/notify"
	"github.com/vigilhq/vigil/internal/signal"
	"github.com/vigilhq/vigil/internal/store"
)

// ErrInvalidInput rejects malformed report submissions before any mutation.
var ErrInvalidInput = errors.New("invalid input")

// EvolutionStyles is the fixed set a guardian's style is drawn from at unlock.
// The choice is immutable afterwards.
var EvolutionStyles = []string{"ember", "tide", "grove", "gale"}

// Rand is the randomness source for the unlock-time style pick.
type Rand interface {
	Intn(n int) int
}

const day = 24 * time.Hour

// Engine maintains guardian stage and curse state per member. All writes go
// through the profile compare-and-write, so concurrent submissions for the
// same member surface as store.ErrProfileConflict for the caller to retry.
type Engine struct {
	DB         *store.DB
	Ledger     *energy.Ledger
	Curse      CurseThresholds
	Dispatcher notify.Dispatcher
	rng        Rand
}

// NewEngine creates an Engine. A nil rng falls back to a time-seeded source;
// a nil dispatcher disables event emission.
func NewEngine(db *store.DB, ledger *energy.Ledger, curse CurseThresholds, dispatcher notify.Dispatcher, rng Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{DB: db, Ledger: ledger, Curse: curse, Dispatcher: dispatcher, rng: rng}
}

// Recovery describes a curse reset triggered by a new report.
type Recovery struct {
	From       CurseState `json:"from"`
	DaysAbsent int        `json:"days_absent"`
}

// ReportResult is the outcome of a report submission.
type ReportResult struct {
	MemberID       string               `json:"member_id"`
	ReportedAt     time.Time            `json:"reported_at"`
	Streak         int                  `json:"streak"`
	TotalReports   int                  `json:"total_reports"`
	GuardianStage  int                  `json:"guardian_stage"`
	Evolved        bool                 `json:"evolved"`
	Unlocked       bool                 `json:"unlocked"`
	EvolutionStyle string               `json:"evolution_style"`
	CurseRecovery  *Recovery            `json:"curse_recovery,omitempty"`
	Ledger         *energy.CreditResult `json:"ledger"`
}

// SubmitReport runs the full per-member transaction for one activity report:
// streak update, energy credit, curse recovery, evolution check, profile
// write. The credit and the profile write commit together, so a replayed
// sourceID is a no-op that returns the current state, and a retry after
// store.ErrProfileConflict starts from scratch with nothing persisted.
func (e *Engine) SubmitReport(memberID string, reportedAt time.Time, sourceID string) (*ReportResult, error) {
	if memberID == "" || sourceID == "" {
		return nil, fmt.Errorf("%w: member id and source id required", ErrInvalidInput)
	}
	if reportedAt.IsZero() {
		return nil, fmt.Errorf("%w: report timestamp required", ErrInvalidInput)
	}
	if reportedAt.After(time.Now().Add(5 * time.Minute)) {
		return nil, fmt.Errorf("%w: report timestamp in the future", ErrInvalidInput)
	}

	p, err := e.DB.GetProfile(memberID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, store.ErrUnknownMember
	}

	last := signal.FromMillis(p.LastReportAt)
	if last != nil && last.Unix() < 0 {
		// Garbage timestamp from an older import: treat as never reported.
		last = nil
		p.GuardianStage = 0
	}

	hours, everReported := signal.HoursUnresponsive(last, reportedAt)
	prevState := CurseNormal
	if everReported {
		prevState = e.Curse.StateFor(hours)
	}

	streak := signal.NextStreak(last, reportedAt, p.Streak)

	// Committed state, for the replayed-submission response.
	prior := *p

	nowMs := reportedAt.UnixMilli()

	var unlocked bool
	if p.UnlockedAt == nil {
		p.UnlockedAt = cloneMs(nowMs)
		p.CadenceAnchorAt = cloneMs(nowMs)
		p.LastEvolvedAt = cloneMs(nowMs)
		p.EvolutionStyle = EvolutionStyles[e.rng.Intn(len(EvolutionStyles))]
		unlocked = true
	}

	var recovery *Recovery
	if prevState != CurseNormal {
		recovery = &Recovery{From: prevState, DaysAbsent: signal.DaysUnresponsive(hours)}
		if prevState == CurseCursed {
			// Cadence timers pause while cursed: shift both anchors forward
			// by the time spent in the cursed state.
			cursedStart := last.Add(time.Duration(e.Curse.CursedHours) * time.Hour)
			if pause := reportedAt.Sub(cursedStart); pause > 0 {
				shiftMs(p.CadenceAnchorAt, pause)
				shiftMs(p.LastEvolvedAt, pause)
			}
		}
	}

	// Evolution check. The report just reset the curse, so the guardian is
	// normal here. Advances at most one stage per check: missed boundaries
	// catch up on subsequent reports.
	var evolved bool
	activeDays := int(reportedAt.Sub(time.UnixMilli(*p.CadenceAnchorAt)) / day)
	if cadence := CadenceFor(activeDays); cadence > 0 {
		sinceEvolve := int(reportedAt.Sub(time.UnixMilli(*p.LastEvolvedAt)) / day)
		if sinceEvolve >= cadence {
			p.GuardianStage++
			p.LastEvolvedAt = cloneMs(nowMs)
			evolved = true
		}
	}

	p.LastReportAt = cloneMs(nowMs)
	p.Streak = streak
	p.TotalReports++

	// Credit and profile write commit in one store transaction: a version
	// conflict rolls the credit back so the caller's retry recomputes from a
	// fresh read, and a duplicate credit can only mean the submission was
	// fully processed before.
	ledgerRes, err := e.Ledger.CreditReport(p, streak, sourceID)
	if err != nil {
		return nil, err
	}

	res := &ReportResult{
		MemberID:   memberID,
		ReportedAt: reportedAt,
		Ledger:     ledgerRes,
	}

	if ledgerRes.Duplicate {
		// Replayed submission: report the committed state unchanged.
		res.Streak = prior.Streak
		res.TotalReports = prior.TotalReports
		res.GuardianStage = prior.GuardianStage
		res.EvolutionStyle = prior.EvolutionStyle
		return res, nil
	}

	// Any report makes the next lapse a fresh tier entry.
	if err := e.DB.ClearAlerts(memberID); err != nil {
		log.Printf("clear alerts for %s: %v", memberID, err)
	}

	res.Streak = p.Streak
	res.TotalReports = p.TotalReports
	res.GuardianStage = p.GuardianStage
	res.EvolutionStyle = p.EvolutionStyle
	res.Unlocked = unlocked
	res.Evolved = evolved
	res.CurseRecovery = recovery

	e.emitEvents(res)
	return res, nil
}

// Status is the derived view of a member's guardian at a point in time.
// CurseState is always recomputed from the last report timestamp; the store
// never holds an authoritative copy.
type Status struct {
	Profile           *store.Profile `json:"profile"`
	CurseState        CurseState     `json:"curse_state"`
	HoursUnresponsive int            `json:"hours_unresponsive"` // -1 if never reported
	DaysUnresponsive  int            `json:"days_unresponsive"`
	CadencePeriod     string         `json:"cadence_period"`
}

// Status returns the member's profile with derived decay state.
func (e *Engine) Status(memberID string, now time.Time) (*Status, error) {
	p, err := e.DB.GetProfile(memberID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, store.ErrUnknownMember
	}

	st := &Status{Profile: p, CurseState: CurseNormal, HoursUnresponsive: -1}
	hours, ok := signal.HoursUnresponsive(signal.FromMillis(p.LastReportAt), now)
	if ok {
		st.HoursUnresponsive = hours
		st.DaysUnresponsive = signal.DaysUnresponsive(hours)
		st.CurseState = e.Curse.StateFor(hours)
	}
	if p.CadenceAnchorAt != nil {
		st.CadencePeriod = PeriodName(int(now.Sub(time.UnixMilli(*p.CadenceAnchorAt)) / day))
	}
	return st, nil
}

// emitEvents fires progression notifications. Delivery is fire-and-forget;
// failures are logged, never propagated.
func (e *Engine) emitEvents(res *ReportResult) {
	if e.Dispatcher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if res.CurseRecovery != nil {
			e.dispatch(ctx, "guardian.recovery", map[string]any{
				"member_id":   res.MemberID,
				"from":        res.CurseRecovery.From,
				"days_absent": res.CurseRecovery.DaysAbsent,
			})
		}
		if res.Evolved {
			e.dispatch(ctx, "guardian.evolution", map[string]any{
				"member_id": res.MemberID,
				"stage":     res.GuardianStage,
				"style":     res.EvolutionStyle,
			})
		}
		if res.Ledger != nil && res.Ledger.IsLuckyBonus {
			e.dispatch(ctx, "energy.lucky_bonus", map[string]any{
				"member_id": res.MemberID,
				"amount":    res.Ledger.Amount,
			})
		}
	}()
}

func (e *Engine) dispatch(ctx context.Context, kind string, payload any) {
	if err := e.Dispatcher.Dispatch(ctx, kind, payload); err != nil {
		log.Printf("dispatch %s for %v: %v", kind, payload, err)
	}
}

func cloneMs(ms int64) *int64 {
	v := ms
	return &v
}

func shiftMs(ms *int64, d time.Duration) {
	if ms != nil {
		*ms += d.Milliseconds()
	}
}

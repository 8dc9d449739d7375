package guardian

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vigilhq/vigil/internal/energy"
	"github.com/vigilhq/vigil/internal/store"
)

type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64 { return r.f }

type firstStyle struct{}

func (firstStyle) Intn(n int) int { return 0 }

func testEngine(t *testing.T) (*Engine, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := energy.DefaultConfig()
	cfg.LuckyProbability = 0
	ledger := energy.NewLedger(db, cfg, fixedRand{0.99})
	eng := NewEngine(db, ledger, DefaultCurseThresholds(), nil, firstStyle{})

	if _, err := db.CreateProfile("m-001", "Ada"); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	return eng, db
}

// baseDay returns noon UTC, n days after a fixed point 60 days in the past,
// so report timestamps are always valid (not in the future).
func baseDay(n int) time.Time {
	y, m, d := time.Now().UTC().AddDate(0, 0, -60).Date()
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestSubmitReportUnlocks(t *testing.T) {
	eng, _ := testEngine(t)

	res, err := eng.SubmitReport("m-001", baseDay(0), "r-0")
	if err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	if !res.Unlocked {
		t.Error("first report should unlock the guardian")
	}
	if res.EvolutionStyle != "ember" {
		t.Errorf("EvolutionStyle = %q, want ember (rng pick 0)", res.EvolutionStyle)
	}
	if res.GuardianStage != 0 {
		t.Errorf("GuardianStage = %d, want 0 (no evolution on unlock day)", res.GuardianStage)
	}
	if res.Streak != 1 || res.TotalReports != 1 {
		t.Errorf("Streak/TotalReports = %d/%d, want 1/1", res.Streak, res.TotalReports)
	}
	if res.Ledger == nil || res.Ledger.Amount != 11 { // 10 base * 1.1 streak multiplier
		t.Errorf("ledger credit = %+v, want amount 11", res.Ledger)
	}
	if res.CurseRecovery != nil {
		t.Errorf("unexpected recovery on first report: %+v", res.CurseRecovery)
	}
}

func TestDailyEvolutionCadence(t *testing.T) {
	eng, _ := testEngine(t)

	// Awaken period evolves daily: unlocked day 0, evolved exactly 3 times by
	// day 3. Growth period (1 per 2 days) holds day 4 and evolves day 5.
	wantStages := []int{0, 1, 2, 3, 3, 4}
	for day, want := range wantStages {
		res, err := eng.SubmitReport("m-001", baseDay(day), fmt.Sprintf("r-%d", day))
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
		if res.GuardianStage != want {
			t.Errorf("day %d: stage = %d, want %d", day, res.GuardianStage, want)
		}
		if res.Streak != day+1 {
			t.Errorf("day %d: streak = %d, want %d", day, res.Streak, day+1)
		}
	}
}

func TestAtMostOneStagePerCheck(t *testing.T) {
	eng, _ := testEngine(t)

	if _, err := eng.SubmitReport("m-001", baseDay(0), "r-0"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	// 49 hours away: two awaken boundaries missed, but one check advances at
	// most one stage.
	res, err := eng.SubmitReport("m-001", baseDay(0).Add(49*time.Hour), "r-1")
	if err != nil {
		t.Fatalf("return report: %v", err)
	}
	if res.GuardianStage != 1 {
		t.Errorf("stage = %d, want 1 (one stage per check)", res.GuardianStage)
	}
	if res.CurseRecovery == nil || res.CurseRecovery.From != CurseWeakness {
		t.Errorf("recovery = %+v, want from weakness", res.CurseRecovery)
	}
	if res.CurseRecovery != nil && res.CurseRecovery.DaysAbsent != 2 {
		t.Errorf("DaysAbsent = %d, want 2", res.CurseRecovery.DaysAbsent)
	}
	if res.Streak != 1 {
		t.Errorf("streak = %d, want 1 after a gap", res.Streak)
	}
}

func TestCursedPausesCadence(t *testing.T) {
	eng, db := testEngine(t)

	unlock := baseDay(0)
	if _, err := eng.SubmitReport("m-001", unlock, "r-0"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	// 96 hours away: cursed from hour 72 on, so 24 hours of cursed time must
	// not count toward the cadence.
	res, err := eng.SubmitReport("m-001", unlock.Add(96*time.Hour), "r-1")
	if err != nil {
		t.Fatalf("return report: %v", err)
	}
	if res.CurseRecovery == nil || res.CurseRecovery.From != CurseCursed {
		t.Fatalf("recovery = %+v, want from cursed", res.CurseRecovery)
	}
	if res.CurseRecovery.DaysAbsent != 4 {
		t.Errorf("DaysAbsent = %d, want 4", res.CurseRecovery.DaysAbsent)
	}

	p, _ := db.GetProfile("m-001")
	wantAnchor := unlock.Add(24 * time.Hour).UnixMilli()
	if p.CadenceAnchorAt == nil || *p.CadenceAnchorAt != wantAnchor {
		t.Errorf("anchor = %v, want %d (shifted by cursed time)", p.CadenceAnchorAt, wantAnchor)
	}
	if res.GuardianStage != 1 {
		t.Errorf("stage = %d, want 1", res.GuardianStage)
	}
}

func TestStageSurvivesInactivity(t *testing.T) {
	eng, _ := testEngine(t)

	eng.SubmitReport("m-001", baseDay(0), "r-0")
	res, err := eng.SubmitReport("m-001", baseDay(1), "r-1")
	if err != nil {
		t.Fatalf("day 1: %v", err)
	}
	if res.GuardianStage != 1 {
		t.Fatalf("stage = %d, want 1", res.GuardianStage)
	}

	// Long silence decays the curse state only; the stage is untouched.
	st, err := eng.Status("m-001", baseDay(1).Add(100*time.Hour))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Profile.GuardianStage != 1 {
		t.Errorf("stage after 100h = %d, want 1 (never decreases)", st.Profile.GuardianStage)
	}
	if st.CurseState != CurseCursed {
		t.Errorf("curse = %q, want cursed", st.CurseState)
	}
	if st.HoursUnresponsive != 100 {
		t.Errorf("hours = %d, want 100", st.HoursUnresponsive)
	}
}

func TestDuplicateSubmissionIsNoOp(t *testing.T) {
	eng, db := testEngine(t)

	if _, err := eng.SubmitReport("m-001", baseDay(0), "r-0"); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := eng.SubmitReport("m-001", baseDay(0).Add(time.Minute), "r-0")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Ledger.Duplicate {
		t.Error("replay should flag the credit as duplicate")
	}
	if res.TotalReports != 1 {
		t.Errorf("TotalReports = %d, want 1", res.TotalReports)
	}

	p, _ := db.GetProfile("m-001")
	if p.TotalReports != 1 || p.EnergyBalance != 11 {
		t.Errorf("profile after replay: reports=%d balance=%d, want 1/11", p.TotalReports, p.EnergyBalance)
	}
}

func TestSubmitReportValidation(t *testing.T) {
	eng, _ := testEngine(t)

	if _, err := eng.SubmitReport("", baseDay(0), "r-0"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty member err = %v, want ErrInvalidInput", err)
	}
	if _, err := eng.SubmitReport("m-001", time.Time{}, "r-0"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero time err = %v, want ErrInvalidInput", err)
	}
	if _, err := eng.SubmitReport("m-001", time.Now().Add(time.Hour), "r-0"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("future time err = %v, want ErrInvalidInput", err)
	}
	if _, err := eng.SubmitReport("ghost", baseDay(0), "r-0"); !errors.Is(err, store.ErrUnknownMember) {
		t.Errorf("unknown member err = %v, want ErrUnknownMember", err)
	}
}

func TestStatusNeverReported(t *testing.T) {
	eng, _ := testEngine(t)

	st, err := eng.Status("m-001", time.Now().UTC())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.HoursUnresponsive != -1 {
		t.Errorf("hours = %d, want -1 for never reported", st.HoursUnresponsive)
	}
	if st.CurseState != CurseNormal {
		t.Errorf("curse = %q, want normal", st.CurseState)
	}
}

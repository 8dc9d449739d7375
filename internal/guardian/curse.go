package guardian

// CurseState is the decay status of a member's guardian. It is strictly
// derived from hours since the last report at evaluation time; a persisted
// copy is never authoritative.
type CurseState string

const (
	CurseNormal   CurseState = "normal"
	CurseAnxiety  CurseState = "anxiety"
	CurseWeakness CurseState = "weakness"
	CurseCursed   CurseState = "cursed"
)

// CurseThresholds holds the inactivity boundaries, in whole hours, for each
// decay step. Thresholds are boundary-inclusive and must be ascending.
type CurseThresholds struct {
	AnxietyHours  int
	WeaknessHours int
	CursedHours   int
}

// DefaultCurseThresholds mirrors the escalation tiers: both derive from the
// same elapsed-time primitive.
func DefaultCurseThresholds() CurseThresholds {
	return CurseThresholds{AnxietyHours: 24, WeaknessHours: 48, CursedHours: 72}
}

// StateFor maps elapsed hours since the last report to a curse state.
// Negative hours (missing or future last report) read as normal.
func (t CurseThresholds) StateFor(hours int) CurseState {
	switch {
	case hours >= t.CursedHours:
		return CurseCursed
	case hours >= t.WeaknessHours:
		return CurseWeakness
	case hours >= t.AnxietyHours:
		return CurseAnxiety
	default:
		return CurseNormal
	}
}

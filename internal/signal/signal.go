// Package signal derives recency metrics from a member's report history.
// Everything here is a pure function of two timestamps; nothing is persisted.
package signal

import "time"

// HoursUnresponsive returns the whole hours elapsed between the member's last
// report and now. ok is false when the member has never reported (lastReportAt
// nil) — a distinct onboarding state, not inactivity. A last report in the
// future clamps to zero rather than going negative.
func HoursUnresponsive(lastReportAt *time.Time, now time.Time) (hours int, ok bool) {
	if lastReportAt == nil || lastReportAt.IsZero() {
		return 0, false
	}
	elapsed := now.Sub(*lastReportAt)
	if elapsed < 0 {
		return 0, true
	}
	return int(elapsed / time.Hour), true
}

// DaysUnresponsive converts whole hours to whole days.
func DaysUnresponsive(hours int) int {
	if hours < 0 {
		return 0
	}
	return hours / 24
}

// SameCalendarDay reports whether two instants fall on the same UTC date.
func SameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// NextStreak steps a member's consecutive-day streak for a report at now.
// A report on the same calendar day keeps the streak; a report on the next
// calendar day extends it; any gap resets it to 1.
func NextStreak(lastReportAt *time.Time, now time.Time, streak int) int {
	if lastReportAt == nil || lastReportAt.IsZero() || streak <= 0 {
		return 1
	}
	if SameCalendarDay(*lastReportAt, now) {
		return streak
	}
	nextDay := lastReportAt.UTC().AddDate(0, 0, 1)
	if SameCalendarDay(nextDay, now) {
		return streak + 1
	}
	return 1
}

// FromMillis converts a nullable unix-millisecond timestamp (the store's
// representation) to a *time.Time.
func FromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

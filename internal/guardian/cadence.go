package guardian

// Evolution cadence slows as a guardian ages. Each period covers a cumulative
// range of active days since unlock and sets how many active days must pass
// between evolutions while inside it. Beyond the last period the guardian
// plateaus and no further scheduled evolution occurs.
type cadencePeriod struct {
	Name       string
	ThroughDay int // inclusive upper bound on active days since unlock
	EveryDays  int
}

var cadenceSchedule = []cadencePeriod{
	{Name: "awaken", ThroughDay: 3, EveryDays: 1},
	{Name: "growth", ThroughDay: 10, EveryDays: 2},
	{Name: "habit", ThroughDay: 24, EveryDays: 3},
	{Name: "stabilize", ThroughDay: 45, EveryDays: 5},
}

// CadenceFor returns the evolve interval in days for a guardian that has been
// active for activeDays since unlock. Zero means the plateau: no scheduled
// evolution.
func CadenceFor(activeDays int) int {
	if activeDays < 0 {
		activeDays = 0
	}
	for _, p := range cadenceSchedule {
		if activeDays <= p.ThroughDay {
			return p.EveryDays
		}
	}
	return 0
}

// PeriodName returns the cadence period label for the given active days,
// or "plateau" beyond the schedule.
func PeriodName(activeDays int) string {
	if activeDays < 0 {
		activeDays = 0
	}
	for _, p := range cadenceSchedule {
		if activeDays <= p.ThroughDay {
			return p.Name
		}
	}
	return "plateau"
}

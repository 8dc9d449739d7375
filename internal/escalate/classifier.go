// Package escalate turns member inactivity into tiered, ranked alerts.
package escalate

import (
	"sort"
	"time"

	"github.com/vigilhq/vigil/internal/signal"
)

// Tier is the organizational risk level derived from hours since last report.
type Tier string

const (
	TierNone   Tier = "none"
	TierYellow Tier = "yellow"
	TierOrange Tier = "orange"
	TierRed    Tier = "red"
)

// Tier thresholds in hours, boundary-inclusive.
const (
	YellowHours = 24
	OrangeHours = 48
	RedHours    = 72
)

// TierFor classifies elapsed hours since the last report.
func TierFor(hours int) Tier {
	switch {
	case hours >= RedHours:
		return TierRed
	case hours >= OrangeHours:
		return TierOrange
	case hours >= YellowHours:
		return TierYellow
	default:
		return TierNone
	}
}

// Record is one at-risk member in a scan result.
type Record struct {
	MemberID          string `json:"member_id"`
	DisplayName       string `json:"display_name"`
	HoursUnresponsive int    `json:"hours_unresponsive"`
	DaysUnresponsive  int    `json:"days_unresponsive"`
	Tier              Tier   `json:"tier"`
	Rank              int    `json:"rank"`
}

// ScanResult is the classification output of one scan. Re-running a scan with
// unchanged profiles and the same now yields an identical result.
type ScanResult struct {
	GeneratedAt    time.Time    `json:"generated_at"`
	Scanned        int          `json:"scanned"`
	Total          int          `json:"total"`
	Counts         map[Tier]int `json:"counts"`
	Records        []Record     `json:"records"`
	Top            []Record     `json:"top"`
	SummaryDue     bool         `json:"summary_due"`
	Notified       int          `json:"notified"`
	DispatchErrors int          `json:"dispatch_errors"`
}

// RunScan classifies every member that has reported at least once. Read-only:
// no profile is mutated and nothing is dispatched. Members below the yellow
// threshold are excluded from the output; members that never reported are
// excluded from the scan entirely. Records are ranked longest-silent first,
// with ties kept in scan arrival order.
func (c *Classifier) RunScan(now time.Time) (*ScanResult, error) {
	profiles, err := c.DB.ListReportedProfiles()
	if err != nil {
		return nil, err
	}

	res := &ScanResult{
		GeneratedAt: now.UTC(),
		Scanned:     len(profiles),
		Counts:      map[Tier]int{},
	}

	for _, p := range profiles {
		hours, ok := signal.HoursUnresponsive(signal.FromMillis(p.LastReportAt), now)
		if !ok {
			continue
		}
		tier := TierFor(hours)
		if tier == TierNone {
			continue
		}
		res.Records = append(res.Records, Record{
			MemberID:          p.MemberID,
			DisplayName:       p.DisplayName,
			HoursUnresponsive: hours,
			DaysUnresponsive:  signal.DaysUnresponsive(hours),
			Tier:              tier,
		})
	}

	sort.SliceStable(res.Records, func(i, j int) bool {
		return res.Records[i].HoursUnresponsive > res.Records[j].HoursUnresponsive
	})
	for i := range res.Records {
		res.Records[i].Rank = i + 1
		res.Counts[res.Records[i].Tier]++
	}

	res.Total = len(res.Records)
	res.SummaryDue = res.Total >= c.Cfg.SummaryMin

	top := res.Total
	if top > c.Cfg.TopN {
		top = c.Cfg.TopN
	}
	res.Top = res.Records[:top]

	return res, nil
}

func (res *ScanResult) redCohort() []Record {
	var red []Record
	for _, r := range res.Records {
		if r.Tier == TierRed {
			red = append(red, r)
		}
	}
	return red
}

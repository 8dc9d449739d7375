package escalate

import (
	"context"
	"log"
	"time"

	"github.com/vigilhq/vigil/internal/notify"
	"github.com/vigilhq/vigil/internal/store"
)

// Config tunes scan dispatch behavior.
type Config struct {
	SummaryMin       int           // suppress the summary alert below this many qualifying members
	TopN             int           // size of the highest-risk projection
	DispatchDelay    time.Duration // pause between per-member dispatches (external rate limits)
	RenotifyCooldown time.Duration // re-alert a member stuck at a tier after this long
}

// DefaultConfig returns the standard scan parameters.
func DefaultConfig() Config {
	return Config{
		SummaryMin:       3,
		TopN:             5,
		DispatchDelay:    200 * time.Millisecond,
		RenotifyCooldown: 24 * time.Hour,
	}
}

// Classifier batch-scans member profiles and escalates at-risk members. The
// scan itself is a stateless, read-only recomputation; only the alert_log
// bookkeeping (which member was notified at which tier) persists across runs.
type Classifier struct {
	DB         *store.DB
	Dispatcher notify.Dispatcher
	Cfg        Config
	stopCh     chan struct{}
}

// NewClassifier creates a Classifier. A nil dispatcher means classification
// only: ScanAndDispatch degrades to RunScan.
func NewClassifier(db *store.DB, dispatcher notify.Dispatcher, cfg Config) *Classifier {
	return &Classifier{DB: db, Dispatcher: dispatcher, Cfg: cfg, stopCh: make(chan struct{})}
}

// ScanAndDispatch classifies every member and escalates the result:
//
//   - a red cohort is always sent as a high-priority alert, regardless of count
//   - the full cohort summary is sent only when SummaryMin or more members
//     qualify across all tiers (below that it is suppressed to avoid alert
//     fatigue, but the scan result is still returned)
//   - each at-risk member gets a detailed alert on tier entry only, re-sent
//     after RenotifyCooldown if still stuck at that tier
//
// Per-member dispatch failures are isolated: they are logged, counted in
// DispatchErrors, and never abort the rest of the loop.
func (c *Classifier) ScanAndDispatch(ctx context.Context, now time.Time) (*ScanResult, error) {
	res, err := c.RunScan(now)
	if err != nil {
		return nil, err
	}
	if c.Dispatcher == nil || res.Total == 0 {
		return res, nil
	}

	if red := res.redCohort(); len(red) > 0 {
		payload := map[string]any{"count": len(red), "members": red, "generated_at": res.GeneratedAt}
		if err := c.Dispatcher.Dispatch(ctx, "escalation.red", payload); err != nil {
			log.Printf("scan: red cohort dispatch: %v", err)
			res.DispatchErrors++
		}
	}

	if res.SummaryDue {
		payload := map[string]any{
			"total":        res.Total,
			"counts":       res.Counts,
			"top":          res.Top,
			"generated_at": res.GeneratedAt,
		}
		if err := c.Dispatcher.Dispatch(ctx, "escalation.summary", payload); err != nil {
			log.Printf("scan: summary dispatch: %v", err)
			res.DispatchErrors++
		}
	}

	nowMs := now.UnixMilli()
	for i, rec := range res.Records {
		if i > 0 && c.Cfg.DispatchDelay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(c.Cfg.DispatchDelay):
			}
		}

		due, err := c.dueForNotification(rec, now)
		if err != nil {
			log.Printf("scan: alert check for %s: %v", rec.MemberID, err)
			res.DispatchErrors++
			continue
		}
		if !due {
			continue
		}

		if err := c.Dispatcher.Dispatch(ctx, "escalation.member", rec); err != nil {
			log.Printf("scan: member dispatch for %s: %v", rec.MemberID, err)
			res.DispatchErrors++
			continue
		}
		if err := c.DB.MarkNotified(rec.MemberID, string(rec.Tier), nowMs); err != nil {
			log.Printf("scan: mark notified for %s: %v", rec.MemberID, err)
		}
		res.Notified++
	}

	return res, nil
}

// dueForNotification implements the tier-entry policy: notify the first time
// a member reaches a tier, then again only after the cooldown.
func (c *Classifier) dueForNotification(rec Record, now time.Time) (bool, error) {
	last, err := c.DB.LastNotifiedAt(rec.MemberID, string(rec.Tier))
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	if c.Cfg.RenotifyCooldown <= 0 {
		return false, nil
	}
	return now.Sub(time.UnixMilli(*last)) >= c.Cfg.RenotifyCooldown, nil
}

// StartScanTimer runs a scan immediately and then on the given interval.
// For deployments without an external scheduler; most run the scan via the
// HTTP endpoint or CLI instead.
func (c *Classifier) StartScanTimer(interval time.Duration) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if res, err := c.ScanAndDispatch(ctx, time.Now().UTC()); err != nil {
			log.Printf("scan error: %v", err)
		} else if res.Total > 0 {
			log.Printf("scan: %d at risk (%d notified, %d dispatch errors)",
				res.Total, res.Notified, res.DispatchErrors)
		}
	}

	run()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				run()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the scan timer.
func (c *Classifier) Stop() {
	close(c.stopCh)
}

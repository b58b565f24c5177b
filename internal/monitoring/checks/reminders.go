package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/doctracker/internal/monitoring"
	"github.com/charlesng35/doctracker/internal/reminders"
)

const defaultRunMaxAge = 36 * time.Hour

// RunHistory exposes the most recent reminder run.
type RunHistory interface {
	LastRun(ctx context.Context) (reminders.Summary, bool, error)
}

// ReminderRuns reports degraded when the last reminder run failed, had
// dispatch errors, or finished longer than maxAge ago. No recorded run is
// treated as up so a fresh deployment is ready before the first trigger.
func ReminderRuns(history RunHistory, maxAge time.Duration, now func() time.Time) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultRunMaxAge
	}
	if now == nil {
		now = time.Now
	}

	return monitoring.NewCheck("reminders", func(ctx context.Context) monitoring.ProbeResult {
		if history == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "run history unavailable"}
		}

		summary, found, err := history.LastRun(ctx)
		if err != nil {
			// The ledger shares the database probe; a read failure here only degrades.
			result := monitoring.ResultFromError(err, 0)
			result.Status = monitoring.StatusDegraded
			return result
		}
		if !found {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no run recorded"}
		}

		var problems []string
		if summary.State == reminders.StateFailed {
			problems = append(problems, fmt.Sprintf("last run %s failed while %s", summary.RunID, summary.FailedStage))
		}
		if n := len(summary.Errors); n > 0 {
			problems = append(problems, fmt.Sprintf("last run had %d dispatch errors", n))
		}
		if !summary.FinishedAt.IsZero() && now().Sub(summary.FinishedAt) > maxAge {
			problems = append(problems, "stale run "+summary.FinishedAt.UTC().Format(time.RFC3339))
		}

		if len(problems) > 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: strings.Join(problems, "; ")}
		}
		return monitoring.ProbeResult{
			Status:  monitoring.StatusUp,
			Details: "last run " + summary.FinishedAt.UTC().Format(time.RFC3339),
		}
	})
}

package reminders

import "time"

// Eligibility is the outcome of evaluating one document against a policy.
type Eligibility struct {
	Eligible  bool `json:"eligible"`
	DaysUntil int  `json:"days_until"`
	Interval  int  `json:"interval,omitempty"`
}

// CalendarDate returns midnight UTC of t's calendar day as observed in t's
// own location. Dates compared this way differ by whole days only.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntil counts calendar days from now to expiration. Both instants are
// reduced to their calendar day first, so a document expiring later today is 0
// days away and one expiring at any time tomorrow is 1 day away.
func DaysUntil(expiration, now time.Time) int {
	diff := CalendarDate(expiration).Sub(CalendarDate(now))
	return int(diff.Hours() / 24)
}

// Evaluate reports whether a reminder is due today. A reminder is due only
// when the remaining day count equals one of the intervals exactly.
func Evaluate(expiration, now time.Time, intervals []int) Eligibility {
	days := DaysUntil(expiration, now)
	result := Eligibility{DaysUntil: days}
	if days < 0 {
		return result
	}
	for _, interval := range intervals {
		if interval == days {
			result.Eligible = true
			result.Interval = interval
			return result
		}
	}
	return result
}

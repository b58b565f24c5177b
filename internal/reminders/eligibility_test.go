package reminders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDaysUntilCountsCalendarDays(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)

	require.Equal(t, 0, DaysUntil(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), now))
	require.Equal(t, 1, DaysUntil(time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC), now))
	require.Equal(t, -1, DaysUntil(date(2024, 2, 29), now))
	require.Equal(t, 365, DaysUntil(date(2025, 3, 1), date(2024, 3, 1)))
}

func TestDaysUntilIgnoresTimeOfDay(t *testing.T) {
	exp := date(2024, 3, 8)
	for _, hour := range []int{0, 6, 12, 18, 23} {
		now := time.Date(2024, 3, 1, hour, 30, 0, 0, time.UTC)
		require.Equal(t, 7, DaysUntil(exp, now), "hour %d", hour)
	}
}

func TestDaysUntilUsesLocalCalendarDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 20:00 UTC on March 1 is already March 2 in Tokyo.
	now := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC).In(tokyo)

	require.Equal(t, 6, DaysUntil(date(2024, 3, 8), now))
}

func TestDaysUntilAcrossDaylightSavingChange(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, loc)

	require.Equal(t, 2, DaysUntil(time.Date(2024, 3, 11, 0, 0, 0, 0, loc), now))
}

func TestEvaluateMatchesExactIntervalsOnly(t *testing.T) {
	now := date(2024, 3, 1)
	intervals := []int{30, 15, 7, 1}

	for _, interval := range intervals {
		el := Evaluate(now.AddDate(0, 0, interval), now, intervals)
		require.True(t, el.Eligible, "interval %d", interval)
		require.Equal(t, interval, el.Interval)
		require.Equal(t, interval, el.DaysUntil)
	}

	for _, days := range []int{2, 6, 8, 14, 16, 29, 31} {
		el := Evaluate(now.AddDate(0, 0, days), now, intervals)
		require.False(t, el.Eligible, "days %d", days)
		require.Zero(t, el.Interval)
		require.Equal(t, days, el.DaysUntil)
	}
}

func TestEvaluateNeverFiresForPastOrToday(t *testing.T) {
	now := date(2024, 3, 1)

	require.False(t, Evaluate(date(2024, 2, 20), now, []int{30, 15, 7, 1}).Eligible)
	require.False(t, Evaluate(now, now, []int{30, 15, 7, 1}).Eligible)
}

func TestEvaluateWithEmptyIntervals(t *testing.T) {
	now := date(2024, 3, 1)
	require.False(t, Evaluate(now.AddDate(0, 0, 7), now, nil).Eligible)
}

func TestCalendarDateNormalisesToUTCMidnight(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	got := CalendarDate(time.Date(2024, 3, 2, 1, 15, 0, 0, tokyo))

	require.Equal(t, date(2024, 3, 2), got)
	require.Equal(t, time.UTC, got.Location())
}

func TestEvaluateHonoursCustomIntervals(t *testing.T) {
	now := date(2024, 3, 1)
	intervals := ResolveIntervals([]any{45.0, 10.0})
	require.Equal(t, []int{45, 10}, intervals)

	tenDays := Evaluate(date(2024, 3, 11), now, intervals)
	require.True(t, tenDays.Eligible)
	require.Equal(t, 10, tenDays.Interval)

	fifteenDays := Evaluate(date(2024, 3, 16), now, intervals)
	require.False(t, fifteenDays.Eligible, "15 is a default interval, not a configured one")
	require.Equal(t, 15, fifteenDays.DaysUntil)

	require.True(t, Evaluate(date(2024, 4, 15), now, intervals).Eligible)
}

package schedule

import "time"

// ExpandWeekly returns every calendar date in [from, to] (inclusive on both
// ends) whose weekday matches. Dates are normalized to UTC midnight; time of
// day on the bounds is ignored.
func ExpandWeekly(weekday time.Weekday, from, to time.Time) []time.Time {
	start := DateOnly(from)
	end := DateOnly(to)
	if end.Before(start) {
		return nil
	}

	first := start
	for first.Weekday() != weekday {
		first = first.AddDate(0, 0, 1)
	}

	var dates []time.Time
	for d := first; !d.After(end); d = d.AddDate(0, 0, 7) {
		dates = append(dates, d)
	}
	return dates
}

// DateOnly truncates to UTC midnight. All date comparisons in conflict checks
// go through this so a timestamped input cannot dodge a same-day booking.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

package schedule

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExpandWeekly_Mondays(t *testing.T) {
	// 2024-01-01 is a Monday; four Mondays through 2024-01-22.
	got := ExpandWeekly(time.Monday, date(2024, time.January, 1), date(2024, time.January, 22))
	want := []time.Time{
		date(2024, time.January, 1),
		date(2024, time.January, 8),
		date(2024, time.January, 15),
		date(2024, time.January, 22),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d dates, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("date %d: expected %s, got %s", i, want[i].Format("2006-01-02"), got[i].Format("2006-01-02"))
		}
	}
}

func TestExpandWeekly_InclusiveEnd(t *testing.T) {
	// End date itself matches the weekday and must be included.
	got := ExpandWeekly(time.Friday, date(2024, time.March, 1), date(2024, time.March, 8))
	if len(got) != 2 {
		t.Fatalf("expected 2 Fridays, got %d", len(got))
	}
}

func TestExpandWeekly_NoMatch(t *testing.T) {
	// Tue..Thu window contains no Monday.
	got := ExpandWeekly(time.Monday, date(2024, time.January, 2), date(2024, time.January, 4))
	if len(got) != 0 {
		t.Fatalf("expected no dates, got %d", len(got))
	}
}

func TestExpandWeekly_InvertedRange(t *testing.T) {
	if got := ExpandWeekly(time.Monday, date(2024, time.January, 22), date(2024, time.January, 1)); got != nil {
		t.Fatalf("inverted range should produce nil, got %v", got)
	}
}

func TestExpandWeekly_IgnoresTimeOfDay(t *testing.T) {
	from := time.Date(2024, time.January, 1, 23, 30, 0, 0, time.UTC)
	to := time.Date(2024, time.January, 1, 0, 15, 0, 0, time.UTC)
	got := ExpandWeekly(time.Monday, from, to)
	if len(got) != 1 || !got[0].Equal(date(2024, time.January, 1)) {
		t.Fatalf("expected the single Monday at midnight, got %v", got)
	}
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2024, time.June, 5, 18, 45, 12, 999, time.UTC)
	if got := DateOnly(in); !got.Equal(date(2024, time.June, 5)) {
		t.Fatalf("DateOnly = %s", got)
	}
}

package schedule

import "testing"

func TestMinutesOfDay(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"00:00", 0, true},
		{"09:30", 570, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"9:30", 0, false},
		{"09:60", 0, false},
		{"0930", 0, false},
		{"", 0, false},
		{"ab:cd", 0, false},
	}
	for _, tc := range cases {
		got, err := MinutesOfDay(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("MinutesOfDay(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("MinutesOfDay(%q) should fail", tc.in)
		}
	}
}

func TestOverlaps_TouchingBoundary(t *testing.T) {
	if Overlaps("09:00", "10:00", "10:00", "11:00") {
		t.Fatal("ranges touching at 10:00 must not overlap")
	}
	if Overlaps("10:00", "11:00", "09:00", "10:00") {
		t.Fatal("ranges touching at 10:00 must not overlap (swapped)")
	}
}

func TestOverlaps_Strict(t *testing.T) {
	if !Overlaps("09:00", "10:30", "10:00", "11:00") {
		t.Fatal("09:00-10:30 overlaps 10:00-11:00")
	}
	if !Overlaps("09:00", "17:00", "10:00", "11:00") {
		t.Fatal("containment is overlap")
	}
}

func TestOverlaps_Symmetry(t *testing.T) {
	pairs := [][4]string{
		{"09:00", "10:00", "09:30", "10:30"},
		{"09:00", "10:00", "10:00", "11:00"},
		{"08:00", "12:00", "09:00", "10:00"},
		{"13:00", "14:00", "09:00", "10:00"},
	}
	for _, p := range pairs {
		if Overlaps(p[0], p[1], p[2], p[3]) != Overlaps(p[2], p[3], p[0], p[1]) {
			t.Fatalf("overlap not symmetric for %v", p)
		}
	}
}

func TestOverlaps_MalformedInput(t *testing.T) {
	if Overlaps("9am", "10:00", "09:30", "10:30") {
		t.Fatal("malformed input must read as no overlap")
	}
}

func TestCoveredByShifts_InclusiveBounds(t *testing.T) {
	shifts := []Window{{Start: "09:00", End: "17:00"}}
	if !CoveredByShifts(shifts, "09:00", "17:00") {
		t.Fatal("session matching the shift exactly must be covered")
	}
	if !CoveredByShifts(shifts, "10:00", "11:00") {
		t.Fatal("interior session must be covered")
	}
	if CoveredByShifts(shifts, "08:59", "10:00") {
		t.Fatal("start before shift must not be covered")
	}
	if CoveredByShifts(shifts, "16:00", "17:01") {
		t.Fatal("end after shift must not be covered")
	}
}

func TestCoveredByShifts_MultipleWindows(t *testing.T) {
	// Split shift: morning and evening blocks on the same day.
	shifts := []Window{
		{Start: "09:00", End: "12:00"},
		{Start: "14:00", End: "18:00"},
	}
	if !CoveredByShifts(shifts, "15:00", "16:00") {
		t.Fatal("session inside second window must be covered")
	}
	if CoveredByShifts(shifts, "12:30", "13:30") {
		t.Fatal("session in the gap must not be covered")
	}
	if len(shifts) != 2 {
		t.Fatal("shifts mutated")
	}
}

func TestValidRange(t *testing.T) {
	if !ValidRange("09:00", "10:00") {
		t.Fatal("09:00-10:00 is valid")
	}
	if ValidRange("10:00", "10:00") {
		t.Fatal("zero-length range is invalid")
	}
	if ValidRange("11:00", "10:00") {
		t.Fatal("inverted range is invalid")
	}
	if ValidRange("xx", "10:00") {
		t.Fatal("malformed start is invalid")
	}
}

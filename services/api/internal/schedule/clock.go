// Package schedule holds the pure time arithmetic behind room and tutor
// conflict checks: clock parsing, interval overlap, shift containment, and
// weekly recurrence expansion. Everything here is same-day wall-clock math;
// there is no timezone handling and no overnight spans.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesOfDay parses an "HH:MM" clock into minutes since midnight.
func MinutesOfDay(clock string) (int, error) {
	hh, mm, ok := strings.Cut(clock, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock %q (want HH:MM)", clock)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid clock %q (want HH:MM)", clock)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q (want HH:MM)", clock)
	}
	return h*60 + m, nil
}

// ValidRange reports whether start and end are well-formed clocks with
// start strictly before end.
func ValidRange(start, end string) bool {
	s, err := MinutesOfDay(start)
	if err != nil {
		return false
	}
	e, err := MinutesOfDay(end)
	if err != nil {
		return false
	}
	return s < e
}

// Overlaps reports whether the half-open ranges [aStart,aEnd) and
// [bStart,bEnd) intersect. Touching endpoints (aEnd == bStart) do not
// overlap. Inputs are "HH:MM"; callers validate format up front, and
// malformed input reads as no overlap.
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	as, err := MinutesOfDay(aStart)
	if err != nil {
		return false
	}
	ae, err := MinutesOfDay(aEnd)
	if err != nil {
		return false
	}
	bs, err := MinutesOfDay(bStart)
	if err != nil {
		return false
	}
	be, err := MinutesOfDay(bEnd)
	if err != nil {
		return false
	}
	return as < be && ae > bs
}

// Window is a same-day clock range, start before end.
type Window struct {
	Start string
	End   string
}

// contains uses inclusive bounds on both ends. A shift 09:00-17:00 admits a
// session ending exactly at 17:00. This is deliberately looser than booking
// overlap, which is half-open; the two rules must not be unified.
func (w Window) contains(clock string) bool {
	t, err := MinutesOfDay(clock)
	if err != nil {
		return false
	}
	s, err := MinutesOfDay(w.Start)
	if err != nil {
		return false
	}
	e, err := MinutesOfDay(w.End)
	if err != nil {
		return false
	}
	return s <= t && t <= e
}

// CoveredByShifts reports whether start and end each fall within at least one
// of the given shift windows.
func CoveredByShifts(shifts []Window, start, end string) bool {
	startOK := false
	endOK := false
	for _, w := range shifts {
		if !startOK && w.contains(start) {
			startOK = true
		}
		if !endOK && w.contains(end) {
			endOK = true
		}
	}
	return startOK && endOK
}

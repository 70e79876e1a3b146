// Package scheduling implements point-in-time availability checks for the
// two time-boxed resources in the system: rooms and tutors. Checks read
// current state and report; they never mutate.
package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/schedule"
)

// ErrRoomNotFound is returned whenever a room id does not resolve to an
// active room. A missing room is never reported as plain "unavailable";
// callers that treat rooms as optional must resolve the id first.
var ErrRoomNotFound = errors.New("room not found")

// Slot is an occupied time range, kept small enough to name in a conflict
// message.
type Slot struct {
	SessionID string
	ClassID   string
	Date      time.Time
	Start     string
	End       string
}

// FindConflict returns the first busy slot overlapping [start, end), or nil.
func FindConflict(busy []Slot, start, end string) *Slot {
	for i := range busy {
		if schedule.Overlaps(start, end, busy[i].Start, busy[i].End) {
			return &busy[i]
		}
	}
	return nil
}

// RoomFree reports whether no booking overlaps [start, end). Bookings are
// assumed pre-filtered to the candidate date.
func RoomFree(bookings []model.Booking, start, end string) bool {
	for _, b := range bookings {
		if schedule.Overlaps(start, end, b.StartTime, b.EndTime) {
			return false
		}
	}
	return true
}

func SessionSlots(sessions []model.ClassSession) []Slot {
	slots := make([]Slot, 0, len(sessions))
	for _, s := range sessions {
		slots = append(slots, Slot{
			SessionID: s.ID,
			ClassID:   s.ClassID,
			Date:      s.Date,
			Start:     s.StartTime,
			End:       s.EndTime,
		})
	}
	return slots
}

type SessionSource interface {
	TutorBusyOn(ctx context.Context, tutorID string, date time.Time, excludeSessionID string) ([]model.ClassSession, error)
}

type RoomSource interface {
	Exists(ctx context.Context, id string) (bool, error)
	BookingsOn(ctx context.Context, roomID string, date time.Time) ([]model.Booking, error)
}

type ShiftSource interface {
	Shifts(ctx context.Context, tutorID string) ([]model.Shift, error)
}

type Checker struct {
	sessions SessionSource
	rooms    RoomSource
	shifts   ShiftSource
}

func NewChecker(sessions SessionSource, rooms RoomSource, shifts ShiftSource) *Checker {
	return &Checker{sessions: sessions, rooms: rooms, shifts: shifts}
}

// IsRoomAvailable reports whether the room is free for [start, end) on the
// given date. An empty roomID is always available: sessions without a room
// are permitted.
func (c *Checker) IsRoomAvailable(ctx context.Context, roomID string, date time.Time, start, end string) (bool, error) {
	if roomID == "" {
		return true, nil
	}
	ok, err := c.rooms.Exists(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrRoomNotFound
	}
	bookings, err := c.rooms.BookingsOn(ctx, roomID, schedule.DateOnly(date))
	if err != nil {
		return false, err
	}
	return RoomFree(bookings, start, end), nil
}

// TutorConflict returns the slot blocking the tutor for [start, end) on the
// date, or nil when the tutor is free. Scheduled and completed sessions of
// the tutor's active classes block; cancelled ones do not.
func (c *Checker) TutorConflict(ctx context.Context, tutorID string, date time.Time, start, end, excludeSessionID string) (*Slot, error) {
	sessions, err := c.sessions.TutorBusyOn(ctx, tutorID, schedule.DateOnly(date), excludeSessionID)
	if err != nil {
		return nil, err
	}
	return FindConflict(SessionSlots(sessions), start, end), nil
}

// WithinShifts reports whether [start, end] sits inside the tutor's declared
// shifts for the weekday. Bounds are inclusive, unlike booking overlap.
func (c *Checker) WithinShifts(ctx context.Context, tutorID string, weekday time.Weekday, start, end string) (bool, error) {
	shifts, err := c.shifts.Shifts(ctx, tutorID)
	if err != nil {
		return false, err
	}
	var windows []schedule.Window
	for _, s := range shifts {
		if s.DayOfWeek == int(weekday) {
			windows = append(windows, schedule.Window{Start: s.StartTime, End: s.EndTime})
		}
	}
	return schedule.CoveredByShifts(windows, start, end), nil
}

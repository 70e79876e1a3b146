package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tutorbase/tutorbase/services/api/internal/model"
)

type fakeSessions struct {
	sessions []model.ClassSession
	err      error
}

func (f *fakeSessions) TutorBusyOn(_ context.Context, _ string, date time.Time, exclude string) ([]model.ClassSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.ClassSession
	for _, s := range f.sessions {
		if s.Date.Equal(date) && s.ID != exclude {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeRooms struct {
	known    map[string]bool
	bookings []model.Booking
}

func (f *fakeRooms) Exists(_ context.Context, id string) (bool, error) {
	return f.known[id], nil
}

func (f *fakeRooms) BookingsOn(_ context.Context, roomID string, _ time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range f.bookings {
		if b.RoomID == roomID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeShifts struct {
	shifts []model.Shift
}

func (f *fakeShifts) Shifts(_ context.Context, _ string) ([]model.Shift, error) {
	return f.shifts, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsRoomAvailable_EmptyRoomID(t *testing.T) {
	c := NewChecker(&fakeSessions{}, &fakeRooms{}, &fakeShifts{})
	ok, err := c.IsRoomAvailable(context.Background(), "", day(2024, 3, 4), "09:00", "10:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("empty room id must always be available")
	}
}

func TestIsRoomAvailable_UnknownRoom(t *testing.T) {
	c := NewChecker(&fakeSessions{}, &fakeRooms{known: map[string]bool{}}, &fakeShifts{})
	_, err := c.IsRoomAvailable(context.Background(), "r-404", day(2024, 3, 4), "09:00", "10:00")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}

func TestIsRoomAvailable_OverlapAndAdjacency(t *testing.T) {
	rooms := &fakeRooms{
		known: map[string]bool{"r-1": true},
		bookings: []model.Booking{
			{RoomID: "r-1", StartTime: "10:00", EndTime: "11:00"},
		},
	}
	c := NewChecker(&fakeSessions{}, rooms, &fakeShifts{})

	ok, err := c.IsRoomAvailable(context.Background(), "r-1", day(2024, 3, 4), "10:30", "11:30")
	if err != nil || ok {
		t.Fatalf("overlapping booking must block: ok=%v err=%v", ok, err)
	}

	ok, err = c.IsRoomAvailable(context.Background(), "r-1", day(2024, 3, 4), "11:00", "12:00")
	if err != nil || !ok {
		t.Fatalf("back-to-back booking must not block: ok=%v err=%v", ok, err)
	}
}

func TestTutorConflict(t *testing.T) {
	monday := day(2024, 3, 4)
	sessions := &fakeSessions{sessions: []model.ClassSession{
		{ID: "s-1", ClassID: "c-1", Date: monday, StartTime: "09:00", EndTime: "10:00"},
		{ID: "s-2", ClassID: "c-2", Date: monday, StartTime: "14:00", EndTime: "15:00"},
	}}
	c := NewChecker(sessions, &fakeRooms{}, &fakeShifts{})

	slot, err := c.TutorConflict(context.Background(), "t-1", monday, "09:30", "10:30", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot == nil || slot.SessionID != "s-1" {
		t.Fatalf("want conflict with s-1, got %+v", slot)
	}

	slot, err = c.TutorConflict(context.Background(), "t-1", monday, "10:00", "11:00", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot != nil {
		t.Fatalf("adjacent session must not conflict, got %+v", slot)
	}
}

func TestTutorConflict_ExcludesSession(t *testing.T) {
	monday := day(2024, 3, 4)
	sessions := &fakeSessions{sessions: []model.ClassSession{
		{ID: "s-1", ClassID: "c-1", Date: monday, StartTime: "09:00", EndTime: "10:00"},
	}}
	c := NewChecker(sessions, &fakeRooms{}, &fakeShifts{})

	slot, err := c.TutorConflict(context.Background(), "t-1", monday, "09:00", "10:00", "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slot != nil {
		t.Fatalf("a session must not conflict with itself on reschedule, got %+v", slot)
	}
}

func TestTutorConflict_SourceError(t *testing.T) {
	boom := errors.New("boom")
	c := NewChecker(&fakeSessions{err: boom}, &fakeRooms{}, &fakeShifts{})
	if _, err := c.TutorConflict(context.Background(), "t-1", day(2024, 3, 4), "09:00", "10:00", ""); !errors.Is(err, boom) {
		t.Fatalf("want source error, got %v", err)
	}
}

func TestWithinShifts(t *testing.T) {
	shifts := &fakeShifts{shifts: []model.Shift{
		{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"},
		{DayOfWeek: 1, StartTime: "13:00", EndTime: "17:00"},
		{DayOfWeek: 3, StartTime: "09:00", EndTime: "17:00"},
	}}
	c := NewChecker(&fakeSessions{}, &fakeRooms{}, shifts)

	ok, err := c.WithinShifts(context.Background(), "t-1", time.Monday, "09:00", "12:00")
	if err != nil || !ok {
		t.Fatalf("exact shift bounds must be covered: ok=%v err=%v", ok, err)
	}

	ok, _ = c.WithinShifts(context.Background(), "t-1", time.Monday, "11:00", "14:00")
	if !ok {
		t.Fatalf("split shifts cover endpoints independently")
	}

	ok, _ = c.WithinShifts(context.Background(), "t-1", time.Tuesday, "09:00", "10:00")
	if ok {
		t.Fatalf("no shift on tuesday")
	}
}

func TestFindConflict_ReturnsFirst(t *testing.T) {
	busy := []Slot{
		{SessionID: "a", Start: "08:00", End: "09:00"},
		{SessionID: "b", Start: "09:30", End: "10:30"},
		{SessionID: "c", Start: "10:00", End: "11:00"},
	}
	got := FindConflict(busy, "10:00", "10:15")
	if got == nil || got.SessionID != "b" {
		t.Fatalf("want first overlapping slot b, got %+v", got)
	}
	if FindConflict(busy, "11:00", "12:00") != nil {
		t.Fatalf("no overlap after last slot")
	}
}

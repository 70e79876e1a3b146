package classes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tutorbase/tutorbase/libs/outbox"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/scheduling"
)

// memStore is an in-memory Store. Writes go to a staging copy that is only
// merged into the store on commit, mirroring transaction semantics.
type memStore struct {
	classes  []model.Class
	sessions []model.ClassSession
	bookings []model.Booking
	payments []model.Payment
	payouts  []model.Payout
	events   []outbox.Event
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	stage := &memTx{base: m}
	if err := fn(ctx, stage); err != nil {
		return err
	}
	m.classes = append(m.classes, stage.classes...)
	m.sessions = append(m.sessions, stage.sessions...)
	m.bookings = append(m.bookings, stage.bookings...)
	m.payments = append(m.payments, stage.payments...)
	m.payouts = append(m.payouts, stage.payouts...)
	m.events = append(m.events, stage.events...)
	return nil
}

type memTx struct {
	base     *memStore
	classes  []model.Class
	sessions []model.ClassSession
	bookings []model.Booking
	payments []model.Payment
	payouts  []model.Payout
	events   []outbox.Event
}

func (t *memTx) InsertClass(_ context.Context, c *model.Class) error {
	t.classes = append(t.classes, *c)
	return nil
}

func (t *memTx) InsertSession(_ context.Context, s *model.ClassSession) error {
	t.sessions = append(t.sessions, *s)
	return nil
}

// TutorBusyOn sees committed sessions plus the ones staged in this
// transaction, like a read inside an open pgx transaction would.
func (t *memTx) TutorBusyOn(_ context.Context, tutorID string, date time.Time, exclude string) ([]model.ClassSession, error) {
	var out []model.ClassSession
	for _, s := range append(append([]model.ClassSession{}, t.base.sessions...), t.sessions...) {
		if s.TutorID == tutorID && s.Date.Equal(date) && s.ID != exclude && s.Status != model.SessionCancelled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *memTx) RoomBookings(_ context.Context, roomID string, date time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range append(append([]model.Booking{}, t.base.bookings...), t.bookings...) {
		if b.RoomID == roomID && b.Date.Equal(date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) InsertBooking(_ context.Context, b model.Booking) error {
	t.bookings = append(t.bookings, b)
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, p *model.Payment) error {
	t.payments = append(t.payments, *p)
	return nil
}

func (t *memTx) InsertPayout(_ context.Context, p *model.Payout) error {
	t.payouts = append(t.payouts, *p)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

type memUsers struct {
	users map[string]model.User
}

func (m *memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return model.User{}, errors.New("no rows in result set")
	}
	return u, nil
}

type memShifts struct {
	shifts []model.Shift
}

func (m *memShifts) Shifts(_ context.Context, _ string) ([]model.Shift, error) {
	return m.shifts, nil
}

type memRooms struct {
	known map[string]bool
}

func (m *memRooms) Exists(_ context.Context, id string) (bool, error) {
	return m.known[id], nil
}

func day(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(store *memStore, shifts []model.Shift, rooms map[string]bool) *Service {
	users := &memUsers{users: map[string]model.User{
		"tutor-1": {ID: "tutor-1", Role: model.RoleTutor, Active: true},
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, users, &memShifts{shifts: shifts}, &memRooms{known: rooms}, log)
}

func mondayShift() []model.Shift {
	return []model.Shift{{TutorID: "tutor-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"}}
}

func baseInput() CreateInput {
	return CreateInput{
		Subject:    "Algebra",
		TutorID:    "tutor-1",
		StudentIDs: []string{"s-1", "s-2", "s-3", "s-4"},
		Patterns:   []model.Pattern{{DayOfWeek: 1, StartTime: "10:00", EndTime: "11:00"}},
		StartDate:  day(2024, 1, 1),
		EndDate:    day(2024, 1, 22),
		PriceCents: 12000,
	}
}

func TestCreate_WeeklyMondays(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, mondayShift(), nil)

	res, err := svc.Create(context.Background(), baseInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(res.Sessions) != 4 {
		t.Fatalf("want 4 sessions, got %d", len(res.Sessions))
	}
	wantDates := []time.Time{day(2024, 1, 1), day(2024, 1, 8), day(2024, 1, 15), day(2024, 1, 22)}
	for i, s := range res.Sessions {
		if !s.Date.Equal(wantDates[i]) {
			t.Fatalf("session %d: want %v, got %v", i, wantDates[i], s.Date)
		}
		if s.Status != model.SessionScheduled || s.RoomID != "" {
			t.Fatalf("session %d: unexpected %+v", i, s)
		}
	}

	if len(store.payments) != 4 {
		t.Fatalf("want one pending payment per student, got %d", len(store.payments))
	}
	for _, p := range store.payments {
		if p.Status != model.PaymentPending || p.AmountCents != 12000 || p.ClassID != res.Class.ID {
			t.Fatalf("unexpected payment %+v", p)
		}
	}
	if len(store.payouts) != 1 {
		t.Fatalf("want exactly one payout, got %d", len(store.payouts))
	}
	if p := store.payouts[0]; p.Status != model.PayoutPending || p.TutorID != "tutor-1" || p.AmountCents != 4*12000 {
		t.Fatalf("unexpected payout %+v", p)
	}

	if len(store.events) != 1 || store.events[0].EventType != "class.created.v1" {
		t.Fatalf("want one class.created.v1 event, got %+v", store.events)
	}
}

func TestCreate_TutorConflictRollsBackEverything(t *testing.T) {
	store := &memStore{
		// Existing session colliding with the 3rd generated occurrence.
		sessions: []model.ClassSession{{
			ID: "existing", ClassID: "other", TutorID: "tutor-1",
			Date: day(2024, 1, 15), StartTime: "10:30", EndTime: "11:30",
			Status: model.SessionScheduled,
		}},
	}
	svc := newTestService(store, mondayShift(), nil)

	_, err := svc.Create(context.Background(), baseInput())
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want ConflictError, got %v", err)
	}
	if !conflict.Date.Equal(day(2024, 1, 15)) {
		t.Fatalf("conflict must name the 3rd occurrence date, got %v", conflict.Date)
	}

	if len(store.classes) != 0 || len(store.sessions) != 1 || len(store.payments) != 0 || len(store.payouts) != 0 || len(store.events) != 0 {
		t.Fatalf("rollback left rows behind: %+v", store)
	}
}

func TestCreate_RoomConflictDegradesToRoomless(t *testing.T) {
	store := &memStore{
		bookings: []model.Booking{{
			ID: "b-1", RoomID: "room-1", Date: day(2024, 1, 8),
			StartTime: "10:30", EndTime: "11:30",
		}},
	}
	svc := newTestService(store, mondayShift(), map[string]bool{"room-1": true})

	in := baseInput()
	in.RoomID = "room-1"
	res, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("room conflict must not fail the request: %v", err)
	}

	if len(res.Sessions) != 4 {
		t.Fatalf("want 4 sessions, got %d", len(res.Sessions))
	}
	for _, s := range res.Sessions {
		if s.Date.Equal(day(2024, 1, 8)) {
			if s.RoomID != "" {
				t.Fatalf("conflicting occurrence must be roomless, got %q", s.RoomID)
			}
		} else if s.RoomID != "room-1" {
			t.Fatalf("free occurrence %v must keep the room, got %q", s.Date, s.RoomID)
		}
	}
	if len(res.RoomlessDays) != 1 || !res.RoomlessDays[0].Equal(day(2024, 1, 8)) {
		t.Fatalf("want the 8th reported roomless, got %v", res.RoomlessDays)
	}
	// One booking per roomed session, none for the conflicting date.
	if len(store.bookings) != 1+3 {
		t.Fatalf("want 3 new bookings, got %d total", len(store.bookings))
	}
}

func TestCreate_UnknownRoomIsNotFound(t *testing.T) {
	svc := newTestService(&memStore{}, mondayShift(), map[string]bool{})
	in := baseInput()
	in.RoomID = "room-404"
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, scheduling.ErrRoomNotFound) {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}

func TestCreate_PatternOutsideShift(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, mondayShift(), nil)

	in := baseInput()
	in.Patterns = []model.Pattern{{DayOfWeek: 1, StartTime: "08:00", EndTime: "09:30"}}
	_, err := svc.Create(context.Background(), in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if len(store.classes) != 0 || len(store.sessions) != 0 {
		t.Fatalf("nothing may persist on validation failure")
	}
}

func TestCreate_ExactShiftBoundsAccepted(t *testing.T) {
	svc := newTestService(&memStore{}, mondayShift(), nil)
	in := baseInput()
	in.Patterns = []model.Pattern{{DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"}}
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("session matching the shift exactly must be accepted: %v", err)
	}
}

func TestCreate_OverlappingPatternsConflict(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, mondayShift(), nil)

	in := baseInput()
	in.Patterns = []model.Pattern{
		{DayOfWeek: 1, StartTime: "10:00", EndTime: "11:00"},
		{DayOfWeek: 1, StartTime: "10:30", EndTime: "11:30"},
	}
	_, err := svc.Create(context.Background(), in)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("patterns overlapping each other must conflict, got %v", err)
	}
	if len(store.sessions) != 0 {
		t.Fatalf("rollback left sessions behind")
	}
}

func TestCreate_EmptyRangeRejected(t *testing.T) {
	svc := newTestService(&memStore{}, mondayShift(), nil)
	in := baseInput()
	// No Monday between Tue 2024-01-02 and Sun 2024-01-07.
	in.StartDate = day(2024, 1, 2)
	in.EndDate = day(2024, 1, 7)
	_, err := svc.Create(context.Background(), in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError for empty expansion, got %v", err)
	}
}

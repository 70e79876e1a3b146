package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tutorbase/tutorbase/libs/outbox"
	"github.com/tutorbase/tutorbase/services/api/internal/classes"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
)

// classStore is an in-memory classes.Store whose writes only land on commit,
// so a rolled-back create leaves it untouched.
type classStore struct {
	classes  []model.Class
	sessions []model.ClassSession
	payments []model.Payment
	events   []outbox.Event
}

func (m *classStore) InTx(ctx context.Context, fn func(ctx context.Context, tx classes.TxStore) error) error {
	stage := &classTx{base: m}
	if err := fn(ctx, stage); err != nil {
		return err
	}
	m.classes = append(m.classes, stage.classes...)
	m.sessions = append(m.sessions, stage.sessions...)
	m.payments = append(m.payments, stage.payments...)
	m.events = append(m.events, stage.events...)
	return nil
}

type classTx struct {
	base     *classStore
	classes  []model.Class
	sessions []model.ClassSession
	payments []model.Payment
	events   []outbox.Event
}

func (t *classTx) InsertClass(_ context.Context, c *model.Class) error {
	t.classes = append(t.classes, *c)
	return nil
}

func (t *classTx) InsertSession(_ context.Context, s *model.ClassSession) error {
	t.sessions = append(t.sessions, *s)
	return nil
}

func (t *classTx) TutorBusyOn(_ context.Context, tutorID string, date time.Time, exclude string) ([]model.ClassSession, error) {
	var out []model.ClassSession
	for _, s := range append(append([]model.ClassSession{}, t.base.sessions...), t.sessions...) {
		if s.TutorID == tutorID && s.Date.Equal(date) && s.ID != exclude && s.Status != model.SessionCancelled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *classTx) RoomBookings(_ context.Context, _ string, _ time.Time) ([]model.Booking, error) {
	return nil, nil
}

func (t *classTx) InsertBooking(_ context.Context, _ model.Booking) error { return nil }

func (t *classTx) InsertPayment(_ context.Context, p *model.Payment) error {
	t.payments = append(t.payments, *p)
	return nil
}

func (t *classTx) InsertPayout(_ context.Context, _ *model.Payout) error { return nil }

func (t *classTx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

type tutorOnlyUsers struct{}

func (tutorOnlyUsers) GetByID(_ context.Context, id string) (model.User, error) {
	if id != "tutor-1" {
		return model.User{}, errors.New("no rows in result set")
	}
	return model.User{ID: "tutor-1", Role: model.RoleTutor, Active: true}, nil
}

type mondayShifts struct{}

func (mondayShifts) Shifts(_ context.Context, _ string) ([]model.Shift, error) {
	return []model.Shift{{TutorID: "tutor-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00"}}, nil
}

type noRooms struct{}

func (noRooms) Exists(_ context.Context, _ string) (bool, error) { return false, nil }

func newClassTestHandler(store *classStore) *ClassHandler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := classes.NewService(store, tutorOnlyUsers{}, mondayShifts{}, noRooms{}, log)
	return NewClassHandler(svc, nil, nil)
}

const mondayClassBody = `{
	"subject": "Algebra II",
	"tutor_id": "tutor-1",
	"student_ids": ["student-1"],
	"patterns": [{"day_of_week": 1, "start_time": "10:00", "end_time": "11:00"}],
	"start_date": "2024-01-01",
	"end_date": "2024-01-22",
	"price_cents": 12000
}`

func TestCreateClassTutorConflictReturns400NamingDate(t *testing.T) {
	store := &classStore{sessions: []model.ClassSession{{
		ID:        "existing-1",
		ClassID:   "other-class",
		TutorID:   "tutor-1",
		Date:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		StartTime: "10:30",
		EndTime:   "11:30",
		Status:    model.SessionScheduled,
	}}}
	h := newClassTestHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/classes/create", strings.NewReader(mondayClassBody))
	rw := httptest.NewRecorder()
	h.Create(rw, req)

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rw.Code, rw.Body.String())
	}
	body := rw.Body.String()
	if !strings.Contains(body, "2024-01-15") {
		t.Fatalf("conflict response should name the date, got %q", body)
	}
	if !strings.Contains(body, "10:00") || !strings.Contains(body, "11:00") {
		t.Fatalf("conflict response should name the time range, got %q", body)
	}

	// The whole create rolled back: no class, sessions, payments or events.
	if len(store.classes) != 0 || len(store.payments) != 0 || len(store.events) != 0 {
		t.Fatalf("conflicting create must persist nothing, store: %+v", store)
	}
	if len(store.sessions) != 1 {
		t.Fatalf("only the pre-existing session should remain, got %d", len(store.sessions))
	}
}

func TestCreateClassReturnsCreatedSessions(t *testing.T) {
	store := &classStore{}
	h := newClassTestHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/classes/create", strings.NewReader(mondayClassBody))
	rw := httptest.NewRecorder()
	h.Create(rw, req)

	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp createClassResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ClassID == "" {
		t.Fatal("expected a class id")
	}
	if len(resp.Sessions) != 4 {
		t.Fatalf("expected 4 Monday sessions, got %d", len(resp.Sessions))
	}
	if resp.Sessions[0].Date != "2024-01-01" || resp.Sessions[3].Date != "2024-01-22" {
		t.Fatalf("unexpected session dates: %+v", resp.Sessions)
	}
}

func TestCreateClassPatternOutsideShiftReturns400(t *testing.T) {
	store := &classStore{}
	h := newClassTestHandler(store)

	body := strings.Replace(mondayClassBody, `"start_time": "10:00"`, `"start_time": "08:00"`, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/classes/create", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Create(rw, req)

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rw.Code, rw.Body.String())
	}
	if len(store.classes) != 0 {
		t.Fatal("invalid pattern must persist nothing")
	}
}

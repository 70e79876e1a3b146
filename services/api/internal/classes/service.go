// Package classes creates and cancels class aggregates. Creation is the
// widest write path in the system: one transaction covers the class, every
// expanded session, room bookings, payments, the payout and the outbox event,
// so a tutor conflict on any occurrence leaves nothing behind.
package classes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tutorbase/tutorbase/libs/outbox"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/schedule"
	"github.com/tutorbase/tutorbase/services/api/internal/scheduling"
)

// TxStore is the slice of storage the orchestrator touches inside one
// transaction. TutorBusyOn must observe sessions inserted earlier in the same
// transaction so overlapping patterns of the request conflict with each other.
type TxStore interface {
	InsertClass(ctx context.Context, c *model.Class) error
	InsertSession(ctx context.Context, s *model.ClassSession) error
	TutorBusyOn(ctx context.Context, tutorID string, date time.Time, excludeSessionID string) ([]model.ClassSession, error)
	RoomBookings(ctx context.Context, roomID string, date time.Time) ([]model.Booking, error)
	InsertBooking(ctx context.Context, b model.Booking) error
	InsertPayment(ctx context.Context, p *model.Payment) error
	InsertPayout(ctx context.Context, p *model.Payout) error
	InsertEvent(ctx context.Context, evt outbox.Event) error
}

// Store runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

type UserSource interface {
	GetByID(ctx context.Context, id string) (model.User, error)
}

type ShiftSource interface {
	Shifts(ctx context.Context, tutorID string) ([]model.Shift, error)
}

type RoomSource interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// ValidationError maps to a 400 without touching storage.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError is a fatal tutor conflict on one generated occurrence. The
// message names the date and range so the caller can fix the pattern.
type ConflictError struct {
	Date          time.Time
	Start, End    string
	WithSessionID string
	WithClassID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("tutor already booked on %s between %s and %s",
		e.Date.Format("2006-01-02"), e.Start, e.End)
}

type occurrence struct {
	date    time.Time
	pattern model.Pattern
}

type CreateInput struct {
	Subject    string
	TutorID    string
	StudentIDs []string
	Patterns   []model.Pattern
	StartDate  time.Time
	EndDate    time.Time
	PriceCents int64
	RoomID     string // preferred room for every occurrence, optional
}

// Result reports what a successful creation persisted.
type Result struct {
	Class        model.Class
	Sessions     []model.ClassSession
	RoomlessDays []time.Time // occurrences that lost the preferred room to a booking
}

type Service struct {
	store  Store
	users  UserSource
	shifts ShiftSource
	rooms  RoomSource
	log    *slog.Logger
}

func NewService(store Store, users UserSource, shifts ShiftSource, rooms RoomSource, log *slog.Logger) *Service {
	return &Service{store: store, users: users, shifts: shifts, rooms: rooms, log: log}
}

// classCreatedEvent is the payload of class.created.v1.
type classCreatedEvent struct {
	ClassID    string   `json:"class_id"`
	Subject    string   `json:"subject"`
	TutorID    string   `json:"tutor_id"`
	StudentIDs []string `json:"student_ids"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Sessions   int      `json:"sessions"`
}

// Create validates the request, then persists the class aggregate, its
// expanded sessions, bookings, payments and payout in one transaction. A
// tutor conflict on any occurrence rolls everything back. A room conflict
// only drops the room from that occurrence.
func (s *Service) Create(ctx context.Context, in CreateInput) (Result, error) {
	if err := s.validate(ctx, &in); err != nil {
		return Result{}, err
	}

	occ := expand(in.Patterns, in.StartDate, in.EndDate)
	if len(occ) == 0 {
		return Result{}, &ValidationError{Msg: "patterns produce no sessions in the date range"}
	}

	class := model.Class{
		ID:         uuid.NewString(),
		Subject:    in.Subject,
		TutorID:    in.TutorID,
		StudentIDs: in.StudentIDs,
		Patterns:   in.Patterns,
		StartDate:  schedule.DateOnly(in.StartDate),
		EndDate:    schedule.DateOnly(in.EndDate),
		PriceCents: in.PriceCents,
		Status:     model.ClassActive,
	}

	var res Result
	err := s.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		res = Result{}
		if err := tx.InsertClass(ctx, &class); err != nil {
			return err
		}
		for _, o := range occ {
			busy, err := tx.TutorBusyOn(ctx, in.TutorID, o.date, "")
			if err != nil {
				return err
			}
			if c := scheduling.FindConflict(scheduling.SessionSlots(busy), o.pattern.StartTime, o.pattern.EndTime); c != nil {
				return &ConflictError{
					Date:          o.date,
					Start:         o.pattern.StartTime,
					End:           o.pattern.EndTime,
					WithSessionID: c.SessionID,
					WithClassID:   c.ClassID,
				}
			}

			sess := model.ClassSession{
				ID:        uuid.NewString(),
				ClassID:   class.ID,
				TutorID:   in.TutorID,
				Date:      o.date,
				StartTime: o.pattern.StartTime,
				EndTime:   o.pattern.EndTime,
				Status:    model.SessionScheduled,
			}

			withRoom := false
			if in.RoomID != "" {
				bookings, err := tx.RoomBookings(ctx, in.RoomID, o.date)
				if err != nil {
					return err
				}
				withRoom = scheduling.RoomFree(bookings, o.pattern.StartTime, o.pattern.EndTime)
			}
			if withRoom {
				sess.RoomID = in.RoomID
			} else if in.RoomID != "" {
				res.RoomlessDays = append(res.RoomlessDays, o.date)
			}

			if err := tx.InsertSession(ctx, &sess); err != nil {
				return err
			}
			if withRoom {
				if err := tx.InsertBooking(ctx, model.Booking{
					ID:        uuid.NewString(),
					RoomID:    in.RoomID,
					Date:      o.date,
					StartTime: o.pattern.StartTime,
					EndTime:   o.pattern.EndTime,
					ClassID:   class.ID,
					SessionID: sess.ID,
				}); err != nil {
					return err
				}
			}
			res.Sessions = append(res.Sessions, sess)
		}

		for _, studentID := range in.StudentIDs {
			if err := tx.InsertPayment(ctx, &model.Payment{
				ID:          uuid.NewString(),
				ClassID:     class.ID,
				StudentID:   studentID,
				AmountCents: in.PriceCents,
				Status:      model.PaymentPending,
			}); err != nil {
				return err
			}
		}
		if err := tx.InsertPayout(ctx, &model.Payout{
			ID:          uuid.NewString(),
			ClassID:     class.ID,
			TutorID:     in.TutorID,
			AmountCents: in.PriceCents * int64(len(in.StudentIDs)),
			Status:      model.PayoutPending,
		}); err != nil {
			return err
		}

		payload, err := json.Marshal(classCreatedEvent{
			ClassID:    class.ID,
			Subject:    class.Subject,
			TutorID:    class.TutorID,
			StudentIDs: class.StudentIDs,
			StartDate:  class.StartDate.Format("2006-01-02"),
			EndDate:    class.EndDate.Format("2006-01-02"),
			Sessions:   len(res.Sessions),
		})
		if err != nil {
			return err
		}
		return tx.InsertEvent(ctx, outbox.Event{
			AggregateType: "class",
			AggregateID:   class.ID,
			EventType:     "class.created.v1",
			Payload:       payload,
		})
	})
	if err != nil {
		return Result{}, err
	}

	res.Class = class
	s.log.Info("class created",
		"class_id", class.ID,
		"tutor_id", class.TutorID,
		"sessions", len(res.Sessions),
		"roomless", len(res.RoomlessDays))
	return res, nil
}

func (s *Service) validate(ctx context.Context, in *CreateInput) error {
	in.Subject = strings.TrimSpace(in.Subject)
	if in.Subject == "" {
		return &ValidationError{Msg: "subject is required"}
	}
	if len(in.StudentIDs) == 0 {
		return &ValidationError{Msg: "at least one student is required"}
	}
	if in.PriceCents <= 0 {
		return &ValidationError{Msg: "price must be positive"}
	}
	if len(in.Patterns) == 0 {
		return &ValidationError{Msg: "at least one weekly pattern is required"}
	}
	if in.EndDate.Before(in.StartDate) {
		return &ValidationError{Msg: "end date precedes start date"}
	}

	tutor, err := s.users.GetByID(ctx, in.TutorID)
	if err != nil {
		return err
	}
	if tutor.Role != model.RoleTutor {
		return &ValidationError{Msg: "tutor_id does not reference a tutor"}
	}

	shifts, err := s.shifts.Shifts(ctx, in.TutorID)
	if err != nil {
		return err
	}
	for _, p := range in.Patterns {
		if p.DayOfWeek < 0 || p.DayOfWeek > 6 {
			return &ValidationError{Msg: fmt.Sprintf("pattern day %d out of range", p.DayOfWeek)}
		}
		if !schedule.ValidRange(p.StartTime, p.EndTime) {
			return &ValidationError{Msg: fmt.Sprintf("pattern %s-%s is not a valid time range", p.StartTime, p.EndTime)}
		}
		var windows []schedule.Window
		for _, sh := range shifts {
			if sh.DayOfWeek == p.DayOfWeek {
				windows = append(windows, schedule.Window{Start: sh.StartTime, End: sh.EndTime})
			}
		}
		if !schedule.CoveredByShifts(windows, p.StartTime, p.EndTime) {
			return &ValidationError{Msg: fmt.Sprintf(
				"pattern %s %s-%s falls outside the tutor's shifts",
				time.Weekday(p.DayOfWeek), p.StartTime, p.EndTime)}
		}
	}

	if in.RoomID != "" {
		ok, err := s.rooms.Exists(ctx, in.RoomID)
		if err != nil {
			return err
		}
		if !ok {
			return scheduling.ErrRoomNotFound
		}
	}
	return nil
}

// expand flattens every pattern into dated occurrences, ordered by date then
// start time so conflict reporting is deterministic.
func expand(patterns []model.Pattern, from, to time.Time) []occurrence {
	var out []occurrence
	for _, p := range patterns {
		for _, d := range schedule.ExpandWeekly(time.Weekday(p.DayOfWeek), from, to) {
			out = append(out, occurrence{date: d, pattern: p})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].date.Equal(out[j].date) {
			return out[i].date.Before(out[j].date)
		}
		return out[i].pattern.StartTime < out[j].pattern.StartTime
	})
	return out
}

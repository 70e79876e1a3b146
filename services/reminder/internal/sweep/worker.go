package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tutorbase/tutorbase/libs/db"
	"github.com/tutorbase/tutorbase/libs/outbox"
)

const EventSessionDue = "reminder.session.due.v1"

type Worker struct {
	pool     *db.Pool
	repo     *Repository
	outbox   *outbox.Repository
	logger   *slog.Logger
	interval time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, logger *slog.Logger, interval time.Duration) *Worker {
	return &Worker{
		pool:     pool,
		repo:     repo,
		outbox:   outboxRepo,
		logger:   logger,
		interval: interval,
	}
}

// Run sweeps immediately and then on every tick until the context is
// cancelled. Sweeps are idempotent, so overlapping runs from restarts or
// multiple replicas only ever queue one reminder per session.
func (w *Worker) Run(ctx context.Context) {
	if err := w.sweep(ctx); err != nil {
		w.logger.Error("reminder sweep failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.Error("reminder sweep failed", "error", err)
			}
		}
	}
}

func (w *Worker) sweep(ctx context.Context) error {
	date := time.Now().UTC().AddDate(0, 0, 1)

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sessions, err := w.repo.FetchDueOn(ctx, tx, date)
	if err != nil {
		return fmt.Errorf("fetch due sessions: %w", err)
	}

	for _, s := range sessions {
		payload, err := json.Marshal(sessionDuePayload(s))
		if err != nil {
			return fmt.Errorf("marshal reminder for session %s: %w", s.SessionID, err)
		}
		evt := outbox.Event{
			AggregateType: "class_session",
			AggregateID:   s.SessionID,
			EventType:     EventSessionDue,
			Payload:       payload,
		}
		if err := w.outbox.InsertKeyed(ctx, tx, reminderKey(s), evt); err != nil {
			return fmt.Errorf("queue reminder for session %s: %w", s.SessionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	if len(sessions) > 0 {
		w.logger.Info("reminder sweep done", "date", date.Format("2006-01-02"), "sessions", len(sessions))
	}
	return nil
}

// reminderKey dedupes one reminder per session per calendar day. A session
// rescheduled to a different date gets a fresh key and hence a fresh reminder.
func reminderKey(s DueSession) string {
	return fmt.Sprintf("session-due:%s:%s", s.SessionID, s.Date.Format("2006-01-02"))
}

type duePayload struct {
	SessionID     string   `json:"session_id"`
	ClassID       string   `json:"class_id"`
	Subject       string   `json:"subject"`
	Date          string   `json:"date"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	RoomName      string   `json:"room_name,omitempty"`
	TutorName     string   `json:"tutor_name"`
	TutorEmail    string   `json:"tutor_email"`
	StudentNames  []string `json:"student_names"`
	StudentEmails []string `json:"student_emails"`
}

func sessionDuePayload(s DueSession) duePayload {
	return duePayload{
		SessionID:     s.SessionID,
		ClassID:       s.ClassID,
		Subject:       s.Subject,
		Date:          s.Date.Format("2006-01-02"),
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		RoomName:      s.RoomName,
		TutorName:     s.TutorName,
		TutorEmail:    s.TutorEmail,
		StudentNames:  s.StudentNames,
		StudentEmails: s.StudentEmails,
	}
}

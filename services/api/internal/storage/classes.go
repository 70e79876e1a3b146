package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tutorbase/tutorbase/libs/db"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
)

type ClassRepository struct {
	pool *db.Pool
}

func NewClassRepository(pool *db.Pool) *ClassRepository {
	return &ClassRepository{pool: pool}
}

func (r *ClassRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *ClassRepository) InsertClassTx(ctx context.Context, tx pgx.Tx, c *model.Class) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO classes (id, subject, tutor_id, start_date, end_date, price_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Subject, c.TutorID, c.StartDate, c.EndDate, c.PriceCents, c.Status)
	if err != nil {
		return err
	}
	for _, p := range c.Patterns {
		if _, err := tx.Exec(ctx, `
			INSERT INTO class_patterns (class_id, day_of_week, start_time, end_time)
			VALUES ($1, $2, $3, $4)
		`, c.ID, p.DayOfWeek, p.StartTime, p.EndTime); err != nil {
			return err
		}
	}
	for _, sid := range c.StudentIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO class_students (class_id, student_id)
			VALUES ($1, $2)
		`, c.ID, sid); err != nil {
			return err
		}
	}
	return nil
}

func (r *ClassRepository) GetClass(ctx context.Context, id string) (model.Class, error) {
	var c model.Class
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, subject, tutor_id::text, start_date, end_date, price_cents, status, created_at
		FROM classes
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Subject, &c.TutorID, &c.StartDate, &c.EndDate, &c.PriceCents, &c.Status, &c.CreatedAt)
	if err != nil {
		return model.Class{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, start_time, end_time
		FROM class_patterns
		WHERE class_id = $1
		ORDER BY day_of_week, start_time
	`, id)
	if err != nil {
		return model.Class{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Pattern
		if err := rows.Scan(&p.DayOfWeek, &p.StartTime, &p.EndTime); err != nil {
			return model.Class{}, err
		}
		c.Patterns = append(c.Patterns, p)
	}
	if rows.Err() != nil {
		return model.Class{}, rows.Err()
	}

	srows, err := r.pool.Query(ctx, `
		SELECT student_id::text
		FROM class_students
		WHERE class_id = $1
	`, id)
	if err != nil {
		return model.Class{}, err
	}
	defer srows.Close()
	for srows.Next() {
		var sid string
		if err := srows.Scan(&sid); err != nil {
			return model.Class{}, err
		}
		c.StudentIDs = append(c.StudentIDs, sid)
	}
	return c, srows.Err()
}

func (r *ClassRepository) ListClasses(ctx context.Context, tutorID, status string, limit int) ([]model.Class, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, subject, tutor_id::text, start_date, end_date, price_cents, status, created_at
		FROM classes
		WHERE ($1 = '' OR tutor_id::text = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, tutorID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []model.Class
	for rows.Next() {
		var c model.Class
		if err := rows.Scan(&c.ID, &c.Subject, &c.TutorID, &c.StartDate, &c.EndDate, &c.PriceCents, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func (r *ClassRepository) SetClassStatusTx(ctx context.Context, tx pgx.Tx, id, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE classes SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CancelFutureSessionsTx cancels a class's scheduled sessions from a date
// onward and releases their room bookings in the same transaction.
func (r *ClassRepository) CancelFutureSessionsTx(ctx context.Context, tx pgx.Tx, classID string, from time.Time) (int, error) {
	if _, err := tx.Exec(ctx, `
		DELETE FROM room_bookings
		WHERE session_id IN (
			SELECT id FROM class_sessions
			WHERE class_id = $1 AND date >= $2 AND status = 'scheduled'
		)
	`, classID, from); err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE class_sessions
		SET status = 'cancelled', room_id = NULL
		WHERE class_id = $1 AND date >= $2 AND status = 'scheduled'
	`, classID, from)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

const sessionColumns = `id::text, class_id::text, tutor_id::text, date, start_time, end_time, status, COALESCE(room_id::text, ''), created_at`

func scanSession(row pgx.Row) (model.ClassSession, error) {
	var s model.ClassSession
	err := row.Scan(&s.ID, &s.ClassID, &s.TutorID, &s.Date, &s.StartTime, &s.EndTime, &s.Status, &s.RoomID, &s.CreatedAt)
	return s, err
}

func (r *ClassRepository) InsertSessionTx(ctx context.Context, tx pgx.Tx, s *model.ClassSession) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO class_sessions (id, class_id, tutor_id, date, start_time, end_time, status, room_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::uuid)
	`, s.ID, s.ClassID, s.TutorID, s.Date, s.StartTime, s.EndTime, s.Status, s.RoomID)
	return err
}

func (r *ClassRepository) GetSession(ctx context.Context, id string) (model.ClassSession, error) {
	return scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM class_sessions
		WHERE id = $1
	`, id))
}

func (r *ClassRepository) GetSessionForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (model.ClassSession, error) {
	return scanSession(tx.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM class_sessions
		WHERE id = $1
		FOR UPDATE
	`, id))
}

// TutorBusyOn returns the tutor's scheduled and completed sessions across
// active classes for one date. Cancelled and rescheduled-away sessions do not
// block; excludeSessionID lets a reschedule ignore the session being moved.
func (r *ClassRepository) TutorBusyOn(ctx context.Context, tutorID string, date time.Time, excludeSessionID string) ([]model.ClassSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id::text, s.class_id::text, s.tutor_id::text, s.date, s.start_time, s.end_time, s.status, COALESCE(s.room_id::text, ''), s.created_at
		FROM class_sessions s
		JOIN classes c ON c.id = s.class_id
		WHERE s.tutor_id = $1
			AND s.date = $2
			AND s.status IN ('scheduled', 'completed')
			AND c.status = 'active'
			AND ($3 = '' OR s.id::text <> $3)
		ORDER BY s.start_time
	`, tutorID, date, excludeSessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// TutorBusyOnTx is TutorBusyOn on an open transaction, so sessions inserted
// earlier in the same transaction count as busy.
func (r *ClassRepository) TutorBusyOnTx(ctx context.Context, tx pgx.Tx, tutorID string, date time.Time, excludeSessionID string) ([]model.ClassSession, error) {
	rows, err := tx.Query(ctx, `
		SELECT s.id::text, s.class_id::text, s.tutor_id::text, s.date, s.start_time, s.end_time, s.status, COALESCE(s.room_id::text, ''), s.created_at
		FROM class_sessions s
		JOIN classes c ON c.id = s.class_id
		WHERE s.tutor_id = $1
			AND s.date = $2
			AND s.status IN ('scheduled', 'completed')
			AND c.status = 'active'
			AND ($3 = '' OR s.id::text <> $3)
		ORDER BY s.start_time
	`, tutorID, date, excludeSessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (r *ClassRepository) ListSessionsByClass(ctx context.Context, classID string) ([]model.ClassSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM class_sessions
		WHERE class_id = $1
		ORDER BY date, start_time
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (r *ClassRepository) ListSessionsByTutor(ctx context.Context, tutorID string, from, to time.Time) ([]model.ClassSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM class_sessions
		WHERE tutor_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, start_time
	`, tutorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (r *ClassRepository) ListSessionsByStudent(ctx context.Context, studentID string, from, to time.Time) ([]model.ClassSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id::text, s.class_id::text, s.tutor_id::text, s.date, s.start_time, s.end_time, s.status, COALESCE(s.room_id::text, ''), s.created_at
		FROM class_sessions s
		JOIN class_students cs ON cs.class_id = s.class_id
		WHERE cs.student_id = $1 AND s.date BETWEEN $2 AND $3
		ORDER BY s.date, s.start_time
	`, studentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]model.ClassSession, error) {
	var sessions []model.ClassSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *ClassRepository) UpdateSessionTimeTx(ctx context.Context, tx pgx.Tx, id string, date time.Time, start, end string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE class_sessions
		SET date = $2, start_time = $3, end_time = $4, status = 'rescheduled'
		WHERE id = $1
	`, id, date, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ClassRepository) SetSessionRoomTx(ctx context.Context, tx pgx.Tx, id, roomID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE class_sessions
		SET room_id = NULLIF($2, '')::uuid
		WHERE id = $1
	`, id, roomID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ClassRepository) UpdateSessionStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE class_sessions SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ClassRepository) UpdateSessionStatusTx(ctx context.Context, tx pgx.Tx, id, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE class_sessions SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ClassRepository) ReplaceAttendance(ctx context.Context, sessionID string, entries []model.Attendance) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM session_attendance WHERE session_id = $1`, sessionID); err != nil {
		return err
	}
	for _, a := range entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO session_attendance (session_id, student_id, present, note)
			VALUES ($1, $2, $3, $4)
		`, sessionID, a.StudentID, a.Present, a.Note); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *ClassRepository) ListAttendance(ctx context.Context, sessionID string) ([]model.Attendance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id::text, student_id::text, present, note
		FROM session_attendance
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.Attendance
	for rows.Next() {
		var a model.Attendance
		if err := rows.Scan(&a.SessionID, &a.StudentID, &a.Present, &a.Note); err != nil {
			return nil, err
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

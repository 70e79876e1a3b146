package sweep

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// DueSession is a session occurrence with everyone who should hear about it.
type DueSession struct {
	SessionID     string
	ClassID       string
	Subject       string
	Date          time.Time
	StartTime     string
	EndTime       string
	RoomName      string
	TutorName     string
	TutorEmail    string
	StudentNames  []string
	StudentEmails []string
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// FetchDueOn lists sessions happening on the given date that are still going
// ahead, with tutor and student contacts resolved.
func (r *Repository) FetchDueOn(ctx context.Context, tx pgx.Tx, date time.Time) ([]DueSession, error) {
	rows, err := tx.Query(ctx, `
		SELECT s.id::text, c.id::text, c.subject, s.date, s.start_time, s.end_time,
			COALESCE(rm.name, ''),
			t.name, t.email,
			COALESCE(array_agg(stu.name) FILTER (WHERE stu.id IS NOT NULL), '{}'),
			COALESCE(array_agg(stu.email) FILTER (WHERE stu.id IS NOT NULL), '{}')
		FROM class_sessions s
		JOIN classes c ON c.id = s.class_id
		JOIN users t ON t.id = s.tutor_id
		LEFT JOIN rooms rm ON rm.id = s.room_id
		LEFT JOIN class_students cs ON cs.class_id = c.id
		LEFT JOIN users stu ON stu.id = cs.student_id AND stu.active
		WHERE s.date = $1
			AND s.status IN ('scheduled', 'rescheduled')
			AND c.status = 'active'
		GROUP BY s.id, c.id, rm.name, t.name, t.email
		ORDER BY s.start_time
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []DueSession
	for rows.Next() {
		var s DueSession
		if err := rows.Scan(
			&s.SessionID, &s.ClassID, &s.Subject, &s.Date, &s.StartTime, &s.EndTime,
			&s.RoomName, &s.TutorName, &s.TutorEmail, &s.StudentNames, &s.StudentEmails,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

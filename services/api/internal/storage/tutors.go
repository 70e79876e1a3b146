package storage

import (
	"context"

	"github.com/tutorbase/tutorbase/libs/db"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
)

type TutorRepository struct {
	pool *db.Pool
}

func NewTutorRepository(pool *db.Pool) *TutorRepository {
	return &TutorRepository{pool: pool}
}

// GetProfile loads a tutor's profile and shifts. The profile row is created
// lazily so a freshly promoted tutor reads back as an empty profile instead
// of a 404.
func (r *TutorRepository) GetProfile(ctx context.Context, tutorID string) (model.TutorProfile, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tutor_profiles (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, tutorID)
	if err != nil {
		return model.TutorProfile{}, err
	}

	var p model.TutorProfile
	err = r.pool.QueryRow(ctx, `
		SELECT user_id::text, subjects, hourly_rate, bio
		FROM tutor_profiles
		WHERE user_id = $1
	`, tutorID).Scan(&p.UserID, &p.Subjects, &p.HourlyRate, &p.Bio)
	if err != nil {
		return model.TutorProfile{}, err
	}

	p.Shifts, err = r.Shifts(ctx, tutorID)
	return p, err
}

func (r *TutorRepository) UpdateProfile(ctx context.Context, p model.TutorProfile) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tutor_profiles (user_id, subjects, hourly_rate, bio)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET subjects = EXCLUDED.subjects,
			hourly_rate = EXCLUDED.hourly_rate,
			bio = EXCLUDED.bio
	`, p.UserID, p.Subjects, p.HourlyRate, p.Bio)
	return err
}

func (r *TutorRepository) Shifts(ctx context.Context, tutorID string) ([]model.Shift, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tutor_id::text, day_of_week, start_time, end_time
		FROM tutor_shifts
		WHERE tutor_id = $1
		ORDER BY day_of_week, start_time
	`, tutorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shifts []model.Shift
	for rows.Next() {
		var s model.Shift
		if err := rows.Scan(&s.ID, &s.TutorID, &s.DayOfWeek, &s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		shifts = append(shifts, s)
	}
	return shifts, rows.Err()
}

// ReplaceShifts swaps the tutor's full shift set atomically.
func (r *TutorRepository) ReplaceShifts(ctx context.Context, tutorID string, shifts []model.Shift) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM tutor_shifts WHERE tutor_id = $1`, tutorID); err != nil {
		return err
	}
	for _, s := range shifts {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tutor_shifts (tutor_id, day_of_week, start_time, end_time)
			VALUES ($1, $2, $3, $4)
		`, tutorID, s.DayOfWeek, s.StartTime, s.EndTime); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

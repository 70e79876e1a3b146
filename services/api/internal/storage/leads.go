package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/tutorbase/tutorbase/libs/db"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
)

type LeadRepository struct {
	pool *db.Pool
}

func NewLeadRepository(pool *db.Pool) *LeadRepository {
	return &LeadRepository{pool: pool}
}

func (r *LeadRepository) Create(ctx context.Context, l model.Lead) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO leads (id, name, email, phone, subject, source, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, l.ID, l.Name, l.Email, l.Phone, l.Subject, l.Source, l.Status, l.Notes)
	return err
}

func (r *LeadRepository) GetByID(ctx context.Context, id string) (model.Lead, error) {
	var l model.Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email, phone, subject, source, status, notes, created_at
		FROM leads
		WHERE id = $1
	`, id).Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Subject, &l.Source, &l.Status, &l.Notes, &l.CreatedAt)
	return l, err
}

func (r *LeadRepository) List(ctx context.Context, status string, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, email, phone, subject, source, status, notes, created_at
		FROM leads
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Subject, &l.Source, &l.Status, &l.Notes, &l.CreatedAt); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (r *LeadRepository) Update(ctx context.Context, id, status, notes string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET status = COALESCE(NULLIF($2, ''), status),
			notes = $3
		WHERE id = $1
	`, id, status, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *LeadRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM leads WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

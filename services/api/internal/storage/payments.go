package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tutorbase/tutorbase/libs/db"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
)

type PaymentRepository struct {
	pool *db.Pool
}

func NewPaymentRepository(pool *db.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *PaymentRepository) InsertPaymentTx(ctx context.Context, tx pgx.Tx, p *model.Payment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (id, class_id, student_id, amount_cents, status)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.ClassID, p.StudentID, p.AmountCents, p.Status)
	return err
}

func (r *PaymentRepository) InsertPayoutTx(ctx context.Context, tx pgx.Tx, p *model.Payout) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payouts (id, class_id, tutor_id, amount_cents, status)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.ClassID, p.TutorID, p.AmountCents, p.Status)
	return err
}

const paymentColumns = `id::text, class_id::text, student_id::text, amount_cents, status, gateway_ref, paid_at, created_at`

func scanPayment(row pgx.Row) (model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.ClassID, &p.StudentID, &p.AmountCents, &p.Status, &p.GatewayRef, &p.PaidAt, &p.CreatedAt)
	return p, err
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id string) (model.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id))
}

func (r *PaymentRepository) GetPaymentForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (model.Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (r *PaymentRepository) ListPayments(ctx context.Context, classID, studentID, status string, limit int) ([]model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE ($1 = '' OR class_id::text = $1)
			AND ($2 = '' OR student_id::text = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`, classID, studentID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) SetGatewayRef(ctx context.Context, id, ref string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET gateway_ref = $2, status = 'processing' WHERE id = $1 AND status = 'pending'
	`, id, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PaymentRepository) SetPaymentStatusTx(ctx context.Context, tx pgx.Tx, id, status string, paidAt *time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $2, paid_at = COALESCE($3, paid_at)
		WHERE id = $1
	`, id, status, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkStudentPaidTx flips the per-class paid flag kept on the enrolment row.
func (r *PaymentRepository) MarkStudentPaidTx(ctx context.Context, tx pgx.Tx, classID, studentID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE class_students SET paid = true WHERE class_id = $1 AND student_id = $2
	`, classID, studentID)
	return err
}

func (r *PaymentRepository) ListPayouts(ctx context.Context, tutorID, status string, limit int) ([]model.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, class_id::text, tutor_id::text, amount_cents, status, created_at
		FROM payouts
		WHERE ($1 = '' OR tutor_id::text = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, tutorID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []model.Payout
	for rows.Next() {
		var p model.Payout
		if err := rows.Scan(&p.ID, &p.ClassID, &p.TutorID, &p.AmountCents, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

// InsertProviderEventTx records a gateway event for replay protection;
// duplicates return ErrDuplicateProviderEvent.
func (r *PaymentRepository) InsertProviderEventTx(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, evt.Provider, evt.ProviderEventID, evt.EventType, evt.Payload)
	if err != nil && IsUniqueViolation(err) {
		return ErrDuplicateProviderEvent
	}
	return err
}

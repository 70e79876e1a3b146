package storage

import (
	"context"
	"encoding/json"

	"github.com/tutorbase/tutorbase/libs/db"
)

type Notification struct {
	SessionID string
	UserID    string
	Channel   string
	Recipient string
	Subject   string
	Payload   map[string]any
	Status    string
}

type NotificationRepository struct {
	pool *db.Pool
}

func NewNotificationRepository(pool *db.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (session_id, user_id, channel, recipient, subject, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.SessionID, n.UserID, n.Channel, n.Recipient, n.Subject, payload, n.Status)
	return err
}

// Contact is the slice of a user the notifier needs for addressing mail.
type Contact struct {
	ID    string
	Name  string
	Email string
}

type ContactRepository struct {
	pool *db.Pool
}

func NewContactRepository(pool *db.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

// Contacts resolves active users by id. Missing or deactivated ids are simply
// absent from the result.
func (r *ContactRepository) Contacts(ctx context.Context, ids []string) ([]Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, email
		FROM users
		WHERE id::text = ANY($1) AND active
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

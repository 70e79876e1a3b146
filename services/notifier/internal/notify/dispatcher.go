package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/tutorbase/tutorbase/services/notifier/internal/email"
	"github.com/tutorbase/tutorbase/services/notifier/internal/storage"
)

// Topics the notifier subscribes to. Each topic name is the event type of the
// outbox record that produced it.
const (
	TopicClassCreated  = "class.created.v1"
	TopicSessionDue    = "reminder.session.due.v1"
	TopicPasswordReset = "auth.password_reset.requested.v1"
	TopicPaymentPaid   = "payments.payment.paid.v1"
)

func Topics() []string {
	return []string{TopicClassCreated, TopicSessionDue, TopicPasswordReset, TopicPaymentPaid}
}

type ContactSource interface {
	Contacts(ctx context.Context, ids []string) ([]storage.Contact, error)
}

type Log interface {
	Insert(ctx context.Context, n storage.Notification) error
}

// Dispatcher turns consumed events into outbound mail. Send failures are
// recorded in the notifications table and logged, never bubbled back to the
// consumer: a broken mailbox should not wedge the topic.
type Dispatcher struct {
	contacts ContactSource
	sender   email.Sender
	log      Log
	logger   *slog.Logger
}

func NewDispatcher(contacts ContactSource, sender email.Sender, log Log, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		contacts: contacts,
		sender:   sender,
		log:      log,
		logger:   logger,
	}
}

// mail is one rendered outbound message.
type mail struct {
	userID    string
	sessionID string
	to        string
	subject   string
	body      string
	payload   map[string]any
}

func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	var (
		mails []mail
		err   error
	)
	switch msg.Topic {
	case TopicClassCreated:
		mails, err = d.renderClassCreated(ctx, msg.Value)
	case TopicSessionDue:
		mails, err = renderSessionDue(msg.Value)
	case TopicPasswordReset:
		mails, err = renderPasswordReset(msg.Value)
	case TopicPaymentPaid:
		mails, err = d.renderPaymentPaid(ctx, msg.Value)
	default:
		d.logger.Warn("unhandled topic", "topic", msg.Topic)
		return nil
	}
	if err != nil {
		d.logger.Error("event render failed", "topic", msg.Topic, "error", err)
		return nil
	}

	for _, m := range mails {
		status := "sent"
		if err := d.sender.Send(m.to, m.subject, m.body); err != nil {
			status = "failed"
			d.logger.Error("email send failed", "recipient", m.to, "topic", msg.Topic, "error", err)
		}
		if err := d.log.Insert(ctx, storage.Notification{
			SessionID: m.sessionID,
			UserID:    m.userID,
			Channel:   "email",
			Recipient: m.to,
			Subject:   m.subject,
			Payload:   m.payload,
			Status:    status,
		}); err != nil {
			return fmt.Errorf("record notification: %w", err)
		}
	}
	if len(mails) > 0 {
		d.logger.Info("event processed", "topic", msg.Topic, "mails", len(mails))
	}
	return nil
}

type classCreatedEvent struct {
	ClassID    string   `json:"class_id"`
	Subject    string   `json:"subject"`
	TutorID    string   `json:"tutor_id"`
	StudentIDs []string `json:"student_ids"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Sessions   int      `json:"sessions"`
}

func (d *Dispatcher) renderClassCreated(ctx context.Context, raw []byte) ([]mail, error) {
	var evt classCreatedEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, err
	}
	if evt.ClassID == "" || evt.Subject == "" {
		return nil, fmt.Errorf("class.created event missing fields")
	}

	contacts, err := d.contacts.Contacts(ctx, append([]string{evt.TutorID}, evt.StudentIDs...))
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("New class scheduled: %s", evt.Subject)
	var mails []mail
	for _, c := range contacts {
		body := fmt.Sprintf(
			"Hi %s,\n\nA new %s class has been scheduled for you.\nIt runs from %s to %s with %d sessions in total.\n\nSee you there!",
			c.Name, evt.Subject, evt.StartDate, evt.EndDate, evt.Sessions,
		)
		mails = append(mails, mail{
			userID:  c.ID,
			to:      c.Email,
			subject: subject,
			body:    body,
			payload: map[string]any{"class_id": evt.ClassID},
		})
	}
	return mails, nil
}

type sessionDueEvent struct {
	SessionID     string   `json:"session_id"`
	ClassID       string   `json:"class_id"`
	Subject       string   `json:"subject"`
	Date          string   `json:"date"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	RoomName      string   `json:"room_name"`
	TutorName     string   `json:"tutor_name"`
	TutorEmail    string   `json:"tutor_email"`
	StudentNames  []string `json:"student_names"`
	StudentEmails []string `json:"student_emails"`
}

func renderSessionDue(raw []byte) ([]mail, error) {
	var evt sessionDueEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, err
	}
	if evt.SessionID == "" || evt.Date == "" {
		return nil, fmt.Errorf("session.due event missing fields")
	}

	where := "online"
	if evt.RoomName != "" {
		where = "in " + evt.RoomName
	}
	subject := fmt.Sprintf("Reminder: %s tomorrow at %s", evt.Subject, evt.StartTime)
	payload := map[string]any{"class_id": evt.ClassID, "date": evt.Date}

	var mails []mail
	if evt.TutorEmail != "" {
		mails = append(mails, mail{
			sessionID: evt.SessionID,
			to:        evt.TutorEmail,
			subject:   subject,
			body: fmt.Sprintf(
				"Hi %s,\n\nYou are teaching %s tomorrow (%s) from %s to %s, %s.",
				evt.TutorName, evt.Subject, evt.Date, evt.StartTime, evt.EndTime, where,
			),
			payload: payload,
		})
	}
	for i, addr := range evt.StudentEmails {
		name := ""
		if i < len(evt.StudentNames) {
			name = evt.StudentNames[i]
		}
		greeting := "Hi,"
		if name != "" {
			greeting = fmt.Sprintf("Hi %s,", name)
		}
		mails = append(mails, mail{
			sessionID: evt.SessionID,
			to:        addr,
			subject:   subject,
			body: fmt.Sprintf(
				"%s\n\nYour %s class is tomorrow (%s) from %s to %s, %s, with %s.",
				greeting, evt.Subject, evt.Date, evt.StartTime, evt.EndTime, where, evt.TutorName,
			),
			payload: payload,
		})
	}
	return mails, nil
}

type passwordResetEvent struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at"`
}

func renderPasswordReset(raw []byte) ([]mail, error) {
	var evt passwordResetEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, err
	}
	if evt.Email == "" || evt.Code == "" {
		return nil, fmt.Errorf("password reset event missing fields")
	}

	return []mail{{
		userID:  evt.UserID,
		to:      evt.Email,
		subject: "Your password reset code",
		body: fmt.Sprintf(
			"Hi %s,\n\nYour password reset code is %s.\nIt expires at %s. If you did not request this, ignore this email.",
			evt.Name, evt.Code, evt.ExpiresAt,
		),
		payload: map[string]any{"expires_at": evt.ExpiresAt},
	}}, nil
}

type paymentPaidEvent struct {
	PaymentID   string `json:"payment_id"`
	ClassID     string `json:"class_id"`
	StudentID   string `json:"student_id"`
	AmountCents int64  `json:"amount_cents"`
	Source      string `json:"source"`
	PaidAt      string `json:"paid_at"`
}

func (d *Dispatcher) renderPaymentPaid(ctx context.Context, raw []byte) ([]mail, error) {
	var evt paymentPaidEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, err
	}
	if evt.PaymentID == "" || evt.StudentID == "" {
		return nil, fmt.Errorf("payment.paid event missing fields")
	}

	contacts, err := d.contacts.Contacts(ctx, []string{evt.StudentID})
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	c := contacts[0]

	return []mail{{
		userID:  c.ID,
		to:      c.Email,
		subject: "Payment received",
		body: fmt.Sprintf(
			"Hi %s,\n\nWe received your payment of %s on %s. Thank you!",
			c.Name, formatAmount(evt.AmountCents), evt.PaidAt,
		),
		payload: map[string]any{"payment_id": evt.PaymentID, "class_id": evt.ClassID},
	}}, nil
}

func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/tutorbase/tutorbase/services/notifier/internal/storage"
)

type fakeContacts struct {
	byID map[string]storage.Contact
}

func (f *fakeContacts) Contacts(_ context.Context, ids []string) ([]storage.Contact, error) {
	var out []storage.Contact
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeSender struct {
	sent    []sentMail
	failFor string
}

func (f *fakeSender) Send(to, subject, body string) error {
	if f.failFor != "" && to == f.failFor {
		return errors.New("connection refused")
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fakeLog struct {
	rows []storage.Notification
}

func (f *fakeLog) Insert(_ context.Context, n storage.Notification) error {
	f.rows = append(f.rows, n)
	return nil
}

func newTestDispatcher(contacts *fakeContacts, sender *fakeSender, log *fakeLog) *Dispatcher {
	if contacts == nil {
		contacts = &fakeContacts{}
	}
	return NewDispatcher(contacts, sender, log, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClassCreatedMailsTutorAndStudents(t *testing.T) {
	contacts := &fakeContacts{byID: map[string]storage.Contact{
		"t-1": {ID: "t-1", Name: "Tutor One", Email: "tutor@example.com"},
		"s-1": {ID: "s-1", Name: "Student One", Email: "s1@example.com"},
		"s-2": {ID: "s-2", Name: "Student Two", Email: "s2@example.com"},
	}}
	sender := &fakeSender{}
	log := &fakeLog{}
	d := newTestDispatcher(contacts, sender, log)

	msg := kafka.Message{
		Topic: TopicClassCreated,
		Value: []byte(`{"class_id":"c-1","subject":"Algebra II","tutor_id":"t-1","student_ids":["s-1","s-2"],"start_date":"2024-01-01","end_date":"2024-03-01","sessions":8}`),
	}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sender.sent) != 3 {
		t.Fatalf("expected 3 mails, got %d", len(sender.sent))
	}
	if sender.sent[0].subject != "New class scheduled: Algebra II" {
		t.Fatalf("unexpected subject %q", sender.sent[0].subject)
	}
	if !strings.Contains(sender.sent[1].body, "8 sessions") {
		t.Fatalf("body should mention session count: %q", sender.sent[1].body)
	}
	if len(log.rows) != 3 || log.rows[0].Status != "sent" {
		t.Fatalf("expected 3 sent notification rows, got %+v", log.rows)
	}
}

func TestSessionDueMailsEveryoneEmbedded(t *testing.T) {
	sender := &fakeSender{}
	log := &fakeLog{}
	d := newTestDispatcher(nil, sender, log)

	msg := kafka.Message{
		Topic: TopicSessionDue,
		Value: []byte(`{"session_id":"sess-1","class_id":"c-1","subject":"Physics","date":"2024-01-15","start_time":"10:00","end_time":"11:00","room_name":"Room A","tutor_name":"Tutor One","tutor_email":"tutor@example.com","student_names":["Student One"],"student_emails":["s1@example.com"]}`),
	}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("expected tutor + student mail, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].body, "in Room A") {
		t.Fatalf("tutor body should name the room: %q", sender.sent[0].body)
	}
	if !strings.Contains(sender.sent[1].body, "with Tutor One") {
		t.Fatalf("student body should name the tutor: %q", sender.sent[1].body)
	}
	for _, row := range log.rows {
		if row.SessionID != "sess-1" {
			t.Fatalf("notification row should carry the session id, got %+v", row)
		}
	}
}

func TestRoomlessSessionSaysOnline(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(nil, sender, &fakeLog{})

	msg := kafka.Message{
		Topic: TopicSessionDue,
		Value: []byte(`{"session_id":"sess-1","subject":"Physics","date":"2024-01-15","start_time":"10:00","end_time":"11:00","tutor_name":"T","tutor_email":"t@example.com"}`),
	}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(sender.sent[0].body, "online") {
		t.Fatalf("roomless session should read online: %q", sender.sent[0].body)
	}
}

func TestSendFailureIsRecordedNotRetried(t *testing.T) {
	sender := &fakeSender{failFor: "t@example.com"}
	log := &fakeLog{}
	d := newTestDispatcher(nil, sender, log)

	msg := kafka.Message{
		Topic: TopicPasswordReset,
		Value: []byte(`{"user_id":"u-1","email":"t@example.com","name":"T","code":"123456","expires_at":"2024-01-15T10:00:00Z"}`),
	}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("send failure must not error the consumer: %v", err)
	}
	if len(log.rows) != 1 || log.rows[0].Status != "failed" {
		t.Fatalf("expected one failed row, got %+v", log.rows)
	}
}

func TestPasswordResetBodyCarriesCode(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(nil, sender, &fakeLog{})

	msg := kafka.Message{
		Topic: TopicPasswordReset,
		Value: []byte(`{"user_id":"u-1","email":"u@example.com","name":"Dana","code":"987654","expires_at":"2024-01-15T10:00:00Z"}`),
	}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(sender.sent[0].body, "987654") {
		t.Fatalf("reset code missing from body: %q", sender.sent[0].body)
	}
}

func TestPaymentPaidReceipt(t *testing.T) {
	contacts := &fakeContacts{byID: map[string]storage.Contact{
		"s-1": {ID: "s-1", Name: "Student One", Email: "s1@example.com"},
	}}
	sender := &fakeSender{}
	d := newTestDispatcher(contacts, sender, &fakeLog{})

	msg := kafka.Message{
		Topic: TopicPaymentPaid,
		Value: []byte(`{"payment_id":"p-1","class_id":"c-1","student_id":"s-1","amount_cents":12050,"source":"stripe","paid_at":"2024-01-15T10:00:00Z"}`),
	}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one receipt, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].body, "$120.50") {
		t.Fatalf("amount missing from body: %q", sender.sent[0].body)
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	sender := &fakeSender{}
	log := &fakeLog{}
	d := newTestDispatcher(nil, sender, log)

	msg := kafka.Message{Topic: TopicSessionDue, Value: []byte(`{not json`)}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("malformed payload must not error the consumer: %v", err)
	}
	if len(sender.sent) != 0 || len(log.rows) != 0 {
		t.Fatalf("nothing should be sent or logged for garbage input")
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:     "$0.00",
		5:     "$0.05",
		12000: "$120.00",
		-250:  "-$2.50",
	}
	for cents, want := range cases {
		if got := formatAmount(cents); got != want {
			t.Errorf("formatAmount(%d) = %q, want %q", cents, got, want)
		}
	}
}

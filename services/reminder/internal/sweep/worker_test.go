package sweep

import (
	"encoding/json"
	"testing"
	"time"
)

func TestReminderKeyIsStablePerSessionAndDate(t *testing.T) {
	s := DueSession{
		SessionID: "sess-1",
		Date:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}

	if got := reminderKey(s); got != "session-due:sess-1:2024-01-15" {
		t.Fatalf("unexpected key %q", got)
	}
	if reminderKey(s) != reminderKey(s) {
		t.Fatalf("key should be deterministic")
	}

	s.Date = s.Date.AddDate(0, 0, 7)
	if got := reminderKey(s); got != "session-due:sess-1:2024-01-22" {
		t.Fatalf("rescheduled date should change the key, got %q", got)
	}
}

func TestSessionDuePayload(t *testing.T) {
	s := DueSession{
		SessionID:     "sess-1",
		ClassID:       "class-1",
		Subject:       "Algebra II",
		Date:          time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		StartTime:     "10:00",
		EndTime:       "11:00",
		RoomName:      "Room A",
		TutorName:     "Tutor One",
		TutorEmail:    "tutor@example.com",
		StudentNames:  []string{"Student One", "Student Two"},
		StudentEmails: []string{"s1@example.com", "s2@example.com"},
	}

	raw, err := json.Marshal(sessionDuePayload(s))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["date"] != "2024-01-15" {
		t.Fatalf("expected date 2024-01-15, got %v", got["date"])
	}
	if got["subject"] != "Algebra II" {
		t.Fatalf("expected subject, got %v", got["subject"])
	}
	emails, ok := got["student_emails"].([]any)
	if !ok || len(emails) != 2 {
		t.Fatalf("expected two student emails, got %v", got["student_emails"])
	}
}

func TestSessionDuePayloadOmitsEmptyRoom(t *testing.T) {
	s := DueSession{SessionID: "sess-1", Date: time.Now()}

	raw, err := json.Marshal(sessionDuePayload(s))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := got["room_name"]; present {
		t.Fatalf("roomless session should omit room_name")
	}
}

package model

import "time"

const (
	ClassActive    = "active"
	ClassCompleted = "completed"
	ClassCancelled = "cancelled"
)

const (
	SessionScheduled   = "scheduled"
	SessionCompleted   = "completed"
	SessionCancelled   = "cancelled"
	SessionRescheduled = "rescheduled"
)

// Pattern is a weekly recurrence rule: one session every week on DayOfWeek
// between StartTime and EndTime. A class may declare several patterns.
type Pattern struct {
	DayOfWeek int
	StartTime string
	EndTime   string
}

type Class struct {
	ID         string
	Subject    string
	TutorID    string
	StudentIDs []string
	Patterns   []Pattern
	StartDate  time.Time
	EndDate    time.Time
	PriceCents int64 // per student for the whole class
	Status     string
	CreatedAt  time.Time
}

// ClassSession is one concrete occurrence of a class. RoomID is a weak
// reference; rooms are independently lifecycled and a session may have none.
type ClassSession struct {
	ID        string
	ClassID   string
	TutorID   string
	Date      time.Time
	StartTime string
	EndTime   string
	Status    string
	RoomID    string // empty = no room assigned
	CreatedAt time.Time
}

type Attendance struct {
	SessionID string
	StudentID string
	Present   bool
	Note      string
}

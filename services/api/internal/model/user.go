package model

import "time"

const (
	RoleAdmin   = "admin"
	RoleTutor   = "tutor"
	RoleStudent = "student"
	RoleParent  = "parent"
)

type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         string
	PhotoURL     string
	Active       bool
	CreatedAt    time.Time
}

// Shift is a tutor's declared weekly availability window for one weekday.
// A tutor may hold several shifts on the same day (split shifts).
type Shift struct {
	ID        string
	TutorID   string
	DayOfWeek int // 0 = Sunday .. 6 = Saturday, matching time.Weekday
	StartTime string
	EndTime   string
}

type TutorProfile struct {
	UserID     string
	Subjects   []string
	HourlyRate int64 // cents
	Bio        string
	Shifts     []Shift
}

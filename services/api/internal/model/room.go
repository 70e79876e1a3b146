package model

import "time"

type Room struct {
	ID        string
	Name      string
	Capacity  int
	Location  string
	Active    bool
	CreatedAt time.Time
}

// Booking reserves a room for a same-day time range. SessionID links back to
// the owning class session when the booking was made by the scheduler; ad-hoc
// bookings carry a user id and description instead.
type Booking struct {
	ID          string
	RoomID      string
	Date        time.Time
	StartTime   string
	EndTime     string
	ClassID     string
	SessionID   string
	UserID      string
	Description string
	CreatedAt   time.Time
}

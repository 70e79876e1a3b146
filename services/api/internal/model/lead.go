package model

import "time"

const (
	LeadNew       = "new"
	LeadContacted = "contacted"
	LeadConverted = "converted"
	LeadLost      = "lost"
)

type Lead struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Subject   string
	Source    string
	Status    string
	Notes     string
	CreatedAt time.Time
}

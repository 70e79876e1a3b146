package model

import "time"

const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentPaid       = "paid"
	PaymentFailed     = "failed"
)

type Payment struct {
	ID          string
	ClassID     string
	StudentID   string
	AmountCents int64
	Status      string
	GatewayRef  string // Stripe payment intent id once one exists
	PaidAt      *time.Time
	CreatedAt   time.Time
}

const (
	PayoutPending = "pending"
	PayoutSettled = "settled"
)

type Payout struct {
	ID          string
	ClassID     string
	TutorID     string
	AmountCents int64
	Status      string
	CreatedAt   time.Time
}

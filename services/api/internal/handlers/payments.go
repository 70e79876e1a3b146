package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"

	"github.com/tutorbase/tutorbase/libs/outbox"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
)

type PaymentHandler struct {
	payments      *storage.PaymentRepository
	outbox        *outbox.Repository
	logger        *slog.Logger
	stripeEnabled bool
	currency      string
}

func NewPaymentHandler(payments *storage.PaymentRepository, outboxRepo *outbox.Repository, logger *slog.Logger, stripeSecretKey, currency string) *PaymentHandler {
	stripeSecretKey = strings.TrimSpace(stripeSecretKey)
	if stripeSecretKey != "" {
		stripe.Key = stripeSecretKey
	}
	if currency == "" {
		currency = "usd"
	}
	return &PaymentHandler{
		payments:      payments,
		outbox:        outboxRepo,
		logger:        logger,
		stripeEnabled: stripeSecretKey != "",
		currency:      currency,
	}
}

type paymentItem struct {
	PaymentID   string `json:"payment_id"`
	ClassID     string `json:"class_id"`
	StudentID   string `json:"student_id"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
	GatewayRef  string `json:"gateway_ref,omitempty"`
	PaidAt      string `json:"paid_at,omitempty"`
}

func toPaymentItem(p model.Payment) paymentItem {
	item := paymentItem{
		PaymentID:   p.ID,
		ClassID:     p.ClassID,
		StudentID:   p.StudentID,
		AmountCents: p.AmountCents,
		Status:      p.Status,
		GatewayRef:  p.GatewayRef,
	}
	if p.PaidAt != nil {
		item.PaidAt = p.PaidAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	classID := strings.TrimSpace(r.URL.Query().Get("class_id"))
	studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	// Students only see their own payments.
	if user, ok := CurrentUser(r.Context()); ok && user.Role == model.RoleStudent {
		studentID = user.ID
	}

	payments, err := h.payments.ListPayments(r.Context(), classID, studentID, status, limit)
	if err != nil {
		http.Error(w, "failed to list payments", http.StatusInternalServerError)
		return
	}
	items := make([]paymentItem, 0, len(payments))
	for _, p := range payments {
		items = append(items, toPaymentItem(p))
	}
	writeJSON(w, http.StatusOK, items)
}

type createIntentRequest struct {
	PaymentID string `json:"payment_id"`
}

type createIntentResponse struct {
	PaymentID    string `json:"payment_id"`
	ClientSecret string `json:"client_secret"`
}

// CreateIntent opens a Stripe payment intent for a pending payment. The
// payment id rides in the intent metadata; the webhook uses it to close the
// loop.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.stripeEnabled {
		http.Error(w, "card payments not configured", http.StatusNotImplemented)
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	if req.PaymentID == "" {
		http.Error(w, "payment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	payment, err := h.payments.GetPayment(ctx, req.PaymentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load payment", http.StatusInternalServerError)
		return
	}
	if user, ok := CurrentUser(ctx); ok && user.Role == model.RoleStudent && user.ID != payment.StudentID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if payment.Status != model.PaymentPending {
		http.Error(w, "payment is not pending", http.StatusConflict)
		return
	}

	intent, err := paymentintent.New(&stripe.PaymentIntentParams{
		Amount:   stripe.Int64(payment.AmountCents),
		Currency: stripe.String(h.currency),
		Metadata: map[string]string{"payment_id": payment.ID},
	})
	if err != nil {
		h.logger.Error("stripe payment intent create failed", "err", err, "payment_id", payment.ID)
		http.Error(w, "failed to create payment intent", http.StatusBadGateway)
		return
	}
	if err := h.payments.SetGatewayRef(ctx, payment.ID, intent.ID); err != nil {
		if storage.IsNotFound(err) {
			// Lost the race against mark-paid or the webhook.
			http.Error(w, "payment is not pending", http.StatusConflict)
			return
		}
		http.Error(w, "failed to save gateway reference", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, createIntentResponse{PaymentID: payment.ID, ClientSecret: intent.ClientSecret})
}

type markPaidRequest struct {
	PaymentID string `json:"payment_id"`
}

// MarkPaid settles a payment out of band (cash, bank transfer). The status
// flip, the enrolment paid flag and the paid event share one transaction.
func (h *PaymentHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req markPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	if req.PaymentID == "" {
		http.Error(w, "payment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.payments.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	payment, err := h.payments.GetPaymentForUpdateTx(ctx, tx, req.PaymentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load payment", http.StatusInternalServerError)
		return
	}
	if payment.Status == model.PaymentPaid {
		writeJSON(w, http.StatusOK, toPaymentItem(payment))
		return
	}

	now := time.Now().UTC()
	if err := h.settleTx(ctx, tx, payment, now, "manual"); err != nil {
		http.Error(w, "failed to mark payment paid", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	payment.Status = model.PaymentPaid
	payment.PaidAt = &now
	writeJSON(w, http.StatusOK, toPaymentItem(payment))
}

func (h *PaymentHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tutorID := strings.TrimSpace(r.URL.Query().Get("tutor_id"))
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if user, ok := CurrentUser(r.Context()); ok && user.Role == model.RoleTutor {
		tutorID = user.ID
	}

	payouts, err := h.payments.ListPayouts(r.Context(), tutorID, status, limit)
	if err != nil {
		http.Error(w, "failed to list payouts", http.StatusInternalServerError)
		return
	}
	items := make([]payoutItem, 0, len(payouts))
	for _, p := range payouts {
		items = append(items, payoutItem{
			PayoutID:    p.ID,
			ClassID:     p.ClassID,
			TutorID:     p.TutorID,
			AmountCents: p.AmountCents,
			Status:      p.Status,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type payoutItem struct {
	PayoutID    string `json:"payout_id"`
	ClassID     string `json:"class_id"`
	TutorID     string `json:"tutor_id"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
}

func (h *PaymentHandler) settleTx(ctx context.Context, tx pgx.Tx, payment model.Payment, paidAt time.Time, source string) error {
	return settlePaymentTx(ctx, tx, h.payments, h.outbox, payment, paidAt, source)
}

// settlePaymentTx flips a payment to paid, marks the student's enrolment paid
// and emits payments.payment.paid.v1, all on the caller's transaction.
func settlePaymentTx(ctx context.Context, tx pgx.Tx, payments *storage.PaymentRepository, outboxRepo *outbox.Repository, payment model.Payment, paidAt time.Time, source string) error {
	if err := payments.SetPaymentStatusTx(ctx, tx, payment.ID, model.PaymentPaid, &paidAt); err != nil {
		return err
	}
	if err := payments.MarkStudentPaidTx(ctx, tx, payment.ClassID, payment.StudentID); err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{
		"payment_id":   payment.ID,
		"class_id":     payment.ClassID,
		"student_id":   payment.StudentID,
		"amount_cents": payment.AmountCents,
		"source":       source,
		"paid_at":      paidAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "payment",
		AggregateID:   payment.ID,
		EventType:     "payments.payment.paid.v1",
		Payload:       payload,
	})
}

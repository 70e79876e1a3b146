package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/tutorbase/tutorbase/libs/outbox"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
)

// StripeWebhookHandler settles card payments. Signature verification is the
// only auth on this route; replays are deduped against the provider-events
// table inside the same transaction that applies the status change.
type StripeWebhookHandler struct {
	payments  *storage.PaymentRepository
	outbox    *outbox.Repository
	logger    *slog.Logger
	secret    string
	tolerance time.Duration
}

func NewStripeWebhookHandler(payments *storage.PaymentRepository, outboxRepo *outbox.Repository, logger *slog.Logger, secret string, tolerance time.Duration) *StripeWebhookHandler {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &StripeWebhookHandler{
		payments:  payments,
		outbox:    outboxRepo,
		logger:    logger,
		secret:    strings.TrimSpace(secret),
		tolerance: tolerance,
	}
}

func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	switch evtType {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.processing":
	default:
		// Unhandled event types are acknowledged so Stripe stops retrying.
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
		h.logger.Error("stripe: invalid payment intent payload", "err", err, "provider_event_id", evt.ID)
		http.Error(w, "invalid payment intent payload", http.StatusBadRequest)
		return
	}
	paymentID := strings.TrimSpace(intent.Metadata["payment_id"])
	if paymentID == "" {
		h.logger.Warn("stripe: payment intent without payment_id metadata", "provider_event_id", evt.ID)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	h.logger.Info("stripe event received",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"payment_id", paymentID,
	)

	ctx := r.Context()
	tx, err := h.payments.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.payments.InsertProviderEventTx(ctx, tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	payment, err := h.payments.GetPaymentForUpdateTx(ctx, tx, paymentID)
	if err != nil {
		if storage.IsNotFound(err) {
			// Nothing to apply it to; keep the dedup row so the replay stays quiet.
			h.logger.Warn("stripe: event for unknown payment", "payment_id", paymentID, "provider_event_id", evt.ID)
			if err := tx.Commit(ctx); err != nil {
				http.Error(w, "failed to commit", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
			return
		}
		http.Error(w, "failed to load payment", http.StatusInternalServerError)
		return
	}

	switch evtType {
	case "payment_intent.succeeded":
		if payment.Status != model.PaymentPaid {
			occurredAt := time.Unix(evt.Created, 0).UTC()
			if err := settlePaymentTx(ctx, tx, h.payments, h.outbox, payment, occurredAt, "stripe"); err != nil {
				http.Error(w, "failed to settle payment", http.StatusInternalServerError)
				return
			}
		}
	case "payment_intent.processing":
		// Only advance; a paid or failed payment keeps its terminal status.
		if payment.Status == model.PaymentPending {
			if err := h.payments.SetPaymentStatusTx(ctx, tx, payment.ID, model.PaymentProcessing, nil); err != nil {
				http.Error(w, "failed to update payment", http.StatusInternalServerError)
				return
			}
		}
	case "payment_intent.payment_failed":
		if payment.Status != model.PaymentPaid {
			if err := h.payments.SetPaymentStatusTx(ctx, tx, payment.ID, model.PaymentFailed, nil); err != nil {
				http.Error(w, "failed to update payment", http.StatusInternalServerError)
				return
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tutorbase/tutorbase/libs/outbox"
	"github.com/tutorbase/tutorbase/services/api/internal/classes"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/scheduling"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
)

type ClassHandler struct {
	service *classes.Service
	repo    *storage.ClassRepository
	outbox  *outbox.Repository
}

func NewClassHandler(service *classes.Service, repo *storage.ClassRepository, outboxRepo *outbox.Repository) *ClassHandler {
	return &ClassHandler{service: service, repo: repo, outbox: outboxRepo}
}

type patternItem struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type createClassRequest struct {
	Subject    string        `json:"subject"`
	TutorID    string        `json:"tutor_id"`
	StudentIDs []string      `json:"student_ids"`
	Patterns   []patternItem `json:"patterns"`
	StartDate  string        `json:"start_date"`
	EndDate    string        `json:"end_date"`
	PriceCents int64         `json:"price_cents"`
	RoomID     string        `json:"room_id"`
}

type sessionItem struct {
	SessionID string `json:"session_id"`
	ClassID   string `json:"class_id"`
	TutorID   string `json:"tutor_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
	RoomID    string `json:"room_id,omitempty"`
}

type createClassResponse struct {
	ClassID      string        `json:"class_id"`
	Sessions     []sessionItem `json:"sessions"`
	RoomlessDays []string      `json:"roomless_days,omitempty"`
}

type classItem struct {
	ClassID    string        `json:"class_id"`
	Subject    string        `json:"subject"`
	TutorID    string        `json:"tutor_id"`
	StudentIDs []string      `json:"student_ids"`
	Patterns   []patternItem `json:"patterns"`
	StartDate  string        `json:"start_date"`
	EndDate    string        `json:"end_date"`
	PriceCents int64         `json:"price_cents"`
	Status     string        `json:"status"`
}

func toSessionItem(s model.ClassSession) sessionItem {
	return sessionItem{
		SessionID: s.ID,
		ClassID:   s.ClassID,
		TutorID:   s.TutorID,
		Date:      s.Date.Format("2006-01-02"),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Status:    s.Status,
		RoomID:    s.RoomID,
	}
}

func toClassItem(c model.Class) classItem {
	item := classItem{
		ClassID:    c.ID,
		Subject:    c.Subject,
		TutorID:    c.TutorID,
		StudentIDs: c.StudentIDs,
		StartDate:  c.StartDate.Format("2006-01-02"),
		EndDate:    c.EndDate.Format("2006-01-02"),
		PriceCents: c.PriceCents,
		Status:     c.Status,
	}
	for _, p := range c.Patterns {
		item.Patterns = append(item.Patterns, patternItem{DayOfWeek: p.DayOfWeek, StartTime: p.StartTime, EndTime: p.EndTime})
	}
	return item
}

func (h *ClassHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	startDate, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.StartDate), time.UTC)
	if err != nil {
		http.Error(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	endDate, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.EndDate), time.UTC)
	if err != nil {
		http.Error(w, "end_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	in := classes.CreateInput{
		Subject:    req.Subject,
		TutorID:    strings.TrimSpace(req.TutorID),
		StudentIDs: req.StudentIDs,
		StartDate:  startDate,
		EndDate:    endDate,
		PriceCents: req.PriceCents,
		RoomID:     strings.TrimSpace(req.RoomID),
	}
	for _, p := range req.Patterns {
		in.Patterns = append(in.Patterns, model.Pattern{DayOfWeek: p.DayOfWeek, StartTime: p.StartTime, EndTime: p.EndTime})
	}

	res, err := h.service.Create(r.Context(), in)
	if err != nil {
		var verr *classes.ValidationError
		var conflict *classes.ConflictError
		switch {
		case errors.As(err, &verr):
			http.Error(w, verr.Msg, http.StatusBadRequest)
		case errors.As(err, &conflict):
			http.Error(w, conflict.Error(), http.StatusBadRequest)
		case errors.Is(err, scheduling.ErrRoomNotFound):
			http.Error(w, "room not found", http.StatusNotFound)
		case storage.IsNotFound(err):
			http.Error(w, "tutor not found", http.StatusNotFound)
		case storage.IsForeignKeyViolation(err):
			http.Error(w, "unknown student or tutor reference", http.StatusBadRequest)
		default:
			http.Error(w, "failed to create class", http.StatusInternalServerError)
		}
		return
	}

	resp := createClassResponse{ClassID: res.Class.ID}
	for _, s := range res.Sessions {
		resp.Sessions = append(resp.Sessions, toSessionItem(s))
	}
	for _, d := range res.RoomlessDays {
		resp.RoomlessDays = append(resp.RoomlessDays, d.Format("2006-01-02"))
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *ClassHandler) List(w http.ResponseWriter, r *http.Request) {
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

	// Tutors only ever see their own classes.
	if user, ok := CurrentUser(r.Context()); ok && user.Role == model.RoleTutor {
		tutorID = user.ID
	}

	list, err := h.repo.ListClasses(r.Context(), tutorID, status, limit)
	if err != nil {
		http.Error(w, "failed to list classes", http.StatusInternalServerError)
		return
	}
	items := make([]classItem, 0, len(list))
	for _, c := range list {
		items = append(items, toClassItem(c))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ClassHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	class, err := h.repo.GetClass(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "class not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load class", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toClassItem(class))
}

type cancelClassRequest struct {
	ClassID string `json:"class_id"`
}

type cancelClassResponse struct {
	ClassID           string `json:"class_id"`
	Status            string `json:"status"`
	CancelledSessions int    `json:"cancelled_sessions"`
}

// Cancel marks the class cancelled and cancels every future session,
// releasing their room bookings, in one transaction.
func (h *ClassHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ClassID = strings.TrimSpace(req.ClassID)
	if req.ClassID == "" {
		http.Error(w, "class_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	class, err := h.repo.GetClass(ctx, req.ClassID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "class not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load class", http.StatusInternalServerError)
		return
	}
	if class.Status == model.ClassCancelled {
		writeJSON(w, http.StatusOK, cancelClassResponse{ClassID: class.ID, Status: class.Status})
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.SetClassStatusTx(ctx, tx, class.ID, model.ClassCancelled); err != nil {
		http.Error(w, "failed to cancel class", http.StatusInternalServerError)
		return
	}
	cancelled, err := h.repo.CancelFutureSessionsTx(ctx, tx, class.ID, time.Now().UTC())
	if err != nil {
		http.Error(w, "failed to cancel sessions", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"class_id":           class.ID,
		"tutor_id":           class.TutorID,
		"cancelled_sessions": cancelled,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "class",
		AggregateID:   class.ID,
		EventType:     "class.cancelled.v1",
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cancelClassResponse{
		ClassID:           class.ID,
		Status:            model.ClassCancelled,
		CancelledSessions: cancelled,
	})
}

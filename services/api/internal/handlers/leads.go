package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
)

type LeadHandler struct {
	leads *storage.LeadRepository
}

func NewLeadHandler(leads *storage.LeadRepository) *LeadHandler {
	return &LeadHandler{leads: leads}
}

type leadIntakeRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Source  string `json:"source"`
	Notes   string `json:"notes"`
}

type leadItem struct {
	LeadID    string `json:"lead_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Source    string `json:"source,omitempty"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toLeadItem(l model.Lead) leadItem {
	return leadItem{
		LeadID:    l.ID,
		Name:      l.Name,
		Email:     l.Email,
		Phone:     l.Phone,
		Subject:   l.Subject,
		Source:    l.Source,
		Status:    l.Status,
		Notes:     l.Notes,
		CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func validLeadStatus(status string) bool {
	switch status {
	case model.LeadNew, model.LeadContacted, model.LeadConverted, model.LeadLost:
		return true
	}
	return false
}

// Intake is the public enquiry form endpoint. It sits behind a rate limiter
// and never reveals whether the contact already exists.
func (h *LeadHandler) Intake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req leadIntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || (req.Email == "" && req.Phone == "") {
		http.Error(w, "name and an email or phone required", http.StatusBadRequest)
		return
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "web"
	}
	lead := model.Lead{
		ID:      uuid.NewString(),
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Subject: strings.TrimSpace(req.Subject),
		Source:  source,
		Status:  model.LeadNew,
		Notes:   strings.TrimSpace(req.Notes),
	}
	if err := h.leads.Create(r.Context(), lead); err != nil {
		http.Error(w, "failed to record enquiry", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"lead_id": lead.ID})
}

func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !validLeadStatus(status) {
		http.Error(w, "invalid status filter", http.StatusBadRequest)
		return
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	leads, err := h.leads.List(r.Context(), status, limit)
	if err != nil {
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}
	items := make([]leadItem, 0, len(leads))
	for _, l := range leads {
		items = append(items, toLeadItem(l))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	lead, err := h.leads.GetByID(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load lead", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toLeadItem(lead))
}

type updateLeadRequest struct {
	LeadID string `json:"lead_id"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.LeadID = strings.TrimSpace(req.LeadID)
	req.Status = strings.TrimSpace(req.Status)
	if req.LeadID == "" {
		http.Error(w, "lead_id required", http.StatusBadRequest)
		return
	}
	if req.Status != "" && !validLeadStatus(req.Status) {
		http.Error(w, "status must be one of new, contacted, converted, lost", http.StatusBadRequest)
		return
	}

	if err := h.leads.Update(r.Context(), req.LeadID, req.Status, strings.TrimSpace(req.Notes)); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update lead", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if err := h.leads.Delete(r.Context(), id); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete lead", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

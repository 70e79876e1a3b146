package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/schedule"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
)

type TutorHandler struct {
	tutors *storage.TutorRepository
	users  *storage.UserRepository
}

func NewTutorHandler(tutors *storage.TutorRepository, users *storage.UserRepository) *TutorHandler {
	return &TutorHandler{tutors: tutors, users: users}
}

type shiftItem struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type profileResponse struct {
	UserID     string      `json:"user_id"`
	Subjects   []string    `json:"subjects"`
	HourlyRate int64       `json:"hourly_rate_cents"`
	Bio        string      `json:"bio,omitempty"`
	Shifts     []shiftItem `json:"shifts"`
}

type updateProfileRequest struct {
	TutorID    string   `json:"tutor_id"`
	Subjects   []string `json:"subjects"`
	HourlyRate int64    `json:"hourly_rate_cents"`
	Bio        string   `json:"bio"`
}

type replaceShiftsRequest struct {
	TutorID string      `json:"tutor_id"`
	Shifts  []shiftItem `json:"shifts"`
}

// tutorID resolves the target tutor: admins pass ?tutor_id= or a body field,
// tutors act on themselves.
func (h *TutorHandler) tutorID(r *http.Request, explicit string) string {
	explicit = strings.TrimSpace(explicit)
	user, ok := CurrentUser(r.Context())
	if !ok {
		return explicit
	}
	if user.Role == model.RoleTutor {
		return user.ID
	}
	return explicit
}

func (h *TutorHandler) Profile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tutorID := h.tutorID(r, r.URL.Query().Get("tutor_id"))
	if tutorID == "" {
		http.Error(w, "tutor_id required", http.StatusBadRequest)
		return
	}

	if _, err := h.users.GetByID(r.Context(), tutorID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "tutor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load tutor", http.StatusInternalServerError)
		return
	}
	profile, err := h.tutors.GetProfile(r.Context(), tutorID)
	if err != nil {
		http.Error(w, "failed to load profile", http.StatusInternalServerError)
		return
	}

	resp := profileResponse{
		UserID:     profile.UserID,
		Subjects:   profile.Subjects,
		HourlyRate: profile.HourlyRate,
		Bio:        profile.Bio,
		Shifts:     make([]shiftItem, 0, len(profile.Shifts)),
	}
	for _, s := range profile.Shifts {
		resp.Shifts = append(resp.Shifts, shiftItem{DayOfWeek: s.DayOfWeek, StartTime: s.StartTime, EndTime: s.EndTime})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TutorHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	tutorID := h.tutorID(r, req.TutorID)
	if tutorID == "" {
		http.Error(w, "tutor_id required", http.StatusBadRequest)
		return
	}
	if req.HourlyRate < 0 {
		http.Error(w, "hourly_rate_cents must not be negative", http.StatusBadRequest)
		return
	}

	if err := h.tutors.UpdateProfile(r.Context(), model.TutorProfile{
		UserID:     tutorID,
		Subjects:   req.Subjects,
		HourlyRate: req.HourlyRate,
		Bio:        strings.TrimSpace(req.Bio),
	}); err != nil {
		if storage.IsForeignKeyViolation(err) {
			http.Error(w, "tutor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update profile", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceShifts swaps the tutor's full weekly availability in one call.
// Existing classes are not revalidated against the new shifts; shifts gate
// class creation only.
func (h *TutorHandler) ReplaceShifts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req replaceShiftsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	tutorID := h.tutorID(r, req.TutorID)
	if tutorID == "" {
		http.Error(w, "tutor_id required", http.StatusBadRequest)
		return
	}

	shifts := make([]model.Shift, 0, len(req.Shifts))
	for _, s := range req.Shifts {
		if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			http.Error(w, "day_of_week must be 0-6", http.StatusBadRequest)
			return
		}
		if !schedule.ValidRange(s.StartTime, s.EndTime) {
			http.Error(w, "shift times must be HH:MM with start before end", http.StatusBadRequest)
			return
		}
		shifts = append(shifts, model.Shift{
			TutorID:   tutorID,
			DayOfWeek: s.DayOfWeek,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		})
	}

	if err := h.tutors.ReplaceShifts(r.Context(), tutorID, shifts); err != nil {
		if storage.IsForeignKeyViolation(err) {
			http.Error(w, "tutor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to replace shifts", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

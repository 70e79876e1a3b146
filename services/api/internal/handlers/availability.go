package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tutorbase/tutorbase/services/api/internal/schedule"
	"github.com/tutorbase/tutorbase/services/api/internal/scheduling"
)

type AvailabilityHandler struct {
	checker *scheduling.Checker
}

func NewAvailabilityHandler(checker *scheduling.Checker) *AvailabilityHandler {
	return &AvailabilityHandler{checker: checker}
}

type availabilityResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

func parseAvailabilityQuery(w http.ResponseWriter, r *http.Request) (date time.Time, start, end string, ok bool) {
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	start = strings.TrimSpace(r.URL.Query().Get("start"))
	end = strings.TrimSpace(r.URL.Query().Get("end"))

	date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return time.Time{}, "", "", false
	}
	if !schedule.ValidRange(start, end) {
		http.Error(w, "start and end must be HH:MM with start before end", http.StatusBadRequest)
		return time.Time{}, "", "", false
	}
	return date, start, end, true
}

func (h *AvailabilityHandler) Room(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roomID := strings.TrimSpace(r.URL.Query().Get("room_id"))
	if roomID == "" {
		http.Error(w, "room_id required", http.StatusBadRequest)
		return
	}
	date, start, end, ok := parseAvailabilityQuery(w, r)
	if !ok {
		return
	}

	available, err := h.checker.IsRoomAvailable(r.Context(), roomID, date, start, end)
	if err != nil {
		if errors.Is(err, scheduling.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to check availability", http.StatusInternalServerError)
		return
	}
	resp := availabilityResponse{Available: available}
	if !available {
		resp.Reason = "room already booked for that time"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Tutor reports whether a tutor could take a session: inside declared shifts
// and free of a session conflict on that date.
func (h *AvailabilityHandler) Tutor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tutorID := strings.TrimSpace(r.URL.Query().Get("tutor_id"))
	if tutorID == "" {
		http.Error(w, "tutor_id required", http.StatusBadRequest)
		return
	}
	date, start, end, ok := parseAvailabilityQuery(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	within, err := h.checker.WithinShifts(ctx, tutorID, date.Weekday(), start, end)
	if err != nil {
		http.Error(w, "failed to load shifts", http.StatusInternalServerError)
		return
	}
	if !within {
		writeJSON(w, http.StatusOK, availabilityResponse{Available: false, Reason: "outside the tutor's shifts"})
		return
	}

	conflict, err := h.checker.TutorConflict(ctx, tutorID, date, start, end, "")
	if err != nil {
		http.Error(w, "failed to check sessions", http.StatusInternalServerError)
		return
	}
	if conflict != nil {
		writeJSON(w, http.StatusOK, availabilityResponse{
			Available: false,
			Reason:    "tutor already booked between " + conflict.Start + " and " + conflict.End,
		})
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Available: true})
}

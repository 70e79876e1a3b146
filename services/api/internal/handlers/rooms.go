package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tutorbase/tutorbase/libs/db"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/schedule"
	"github.com/tutorbase/tutorbase/services/api/internal/scheduling"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
)

type RoomHandler struct {
	pool    *db.Pool
	rooms   *storage.RoomRepository
	checker *scheduling.Checker
}

func NewRoomHandler(pool *db.Pool, rooms *storage.RoomRepository, checker *scheduling.Checker) *RoomHandler {
	return &RoomHandler{pool: pool, rooms: rooms, checker: checker}
}

type roomRequest struct {
	RoomID   string `json:"room_id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Location string `json:"location"`
	Active   *bool  `json:"active"`
}

type roomItem struct {
	RoomID   string `json:"room_id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Location string `json:"location,omitempty"`
	Active   bool   `json:"active"`
}

type bookingItem struct {
	BookingID   string `json:"booking_id"`
	RoomID      string `json:"room_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	ClassID     string `json:"class_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type createBookingRequest struct {
	RoomID      string `json:"room_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Description string `json:"description"`
}

func toBookingItem(b model.Booking) bookingItem {
	return bookingItem{
		BookingID:   b.ID,
		RoomID:      b.RoomID,
		Date:        b.Date.Format("2006-01-02"),
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		ClassID:     b.ClassID,
		SessionID:   b.SessionID,
		UserID:      b.UserID,
		Description: b.Description,
	}
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Capacity <= 0 {
		http.Error(w, "name and a positive capacity required", http.StatusBadRequest)
		return
	}

	room := model.Room{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Capacity: req.Capacity,
		Location: strings.TrimSpace(req.Location),
		Active:   true,
	}
	if err := h.rooms.Create(r.Context(), room); err != nil {
		if storage.IsUniqueViolation(err) {
			http.Error(w, "room name already in use", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, roomItem{
		RoomID: room.ID, Name: room.Name, Capacity: room.Capacity,
		Location: room.Location, Active: room.Active,
	})
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rooms, err := h.rooms.List(r.Context())
	if err != nil {
		http.Error(w, "failed to list rooms", http.StatusInternalServerError)
		return
	}
	items := make([]roomItem, 0, len(rooms))
	for _, room := range rooms {
		items = append(items, roomItem{
			RoomID: room.ID, Name: room.Name, Capacity: room.Capacity,
			Location: room.Location, Active: room.Active,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RoomID = strings.TrimSpace(req.RoomID)
	if req.RoomID == "" {
		http.Error(w, "room_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	room, err := h.rooms.GetByID(ctx, req.RoomID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		room.Name = name
	}
	if req.Capacity > 0 {
		room.Capacity = req.Capacity
	}
	if loc := strings.TrimSpace(req.Location); loc != "" {
		room.Location = loc
	}
	if req.Active != nil {
		room.Active = *req.Active
	}

	if err := h.rooms.Update(ctx, room); err != nil {
		http.Error(w, "failed to update room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, roomItem{
		RoomID: room.ID, Name: room.Name, Capacity: room.Capacity,
		Location: room.Location, Active: room.Active,
	})
}

func (h *RoomHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimSpace(r.URL.Query().Get("room_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if roomID == "" || dateStr == "" {
		http.Error(w, "room_id and date required", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	ok, err := h.rooms.Exists(r.Context(), roomID)
	if err != nil {
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	bookings, err := h.rooms.BookingsOn(r.Context(), roomID, date)
	if err != nil {
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b))
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateBooking reserves a room ad hoc, outside any class session. The
// availability check and the insert share one transaction.
func (h *RoomHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RoomID = strings.TrimSpace(req.RoomID)
	if req.RoomID == "" {
		http.Error(w, "room_id required", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if !schedule.ValidRange(req.StartTime, req.EndTime) {
		http.Error(w, "times must be HH:MM with start before end", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	available, err := h.checker.IsRoomAvailable(ctx, req.RoomID, date, req.StartTime, req.EndTime)
	if err != nil {
		if errors.Is(err, scheduling.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to check availability", http.StatusInternalServerError)
		return
	}
	if !available {
		http.Error(w, "room is not available for that time", http.StatusConflict)
		return
	}

	booking := model.Booking{
		ID:          uuid.NewString(),
		RoomID:      req.RoomID,
		Date:        date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Description: strings.TrimSpace(req.Description),
	}
	if user, ok := CurrentUser(ctx); ok {
		booking.UserID = user.ID
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Re-check with the transaction so two concurrent requests cannot both
	// pass the pool-level read.
	bookings, err := h.rooms.BookingsOnTx(ctx, tx, req.RoomID, date)
	if err != nil {
		http.Error(w, "failed to check availability", http.StatusInternalServerError)
		return
	}
	if !scheduling.RoomFree(bookings, req.StartTime, req.EndTime) {
		http.Error(w, "room is not available for that time", http.StatusConflict)
		return
	}
	if err := h.rooms.InsertBookingTx(ctx, tx, booking); err != nil {
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingItem(booking))
}

// DeleteBooking removes an ad-hoc booking. Session-owned bookings are
// released through the session endpoints so the link stays consistent.
func (h *RoomHandler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.TrimSpace(r.URL.Query().Get("room_id"))
	bookingID := strings.TrimSpace(r.URL.Query().Get("booking_id"))
	if roomID == "" || bookingID == "" {
		http.Error(w, "room_id and booking_id required", http.StatusBadRequest)
		return
	}

	if err := h.rooms.DeleteBooking(r.Context(), roomID, bookingID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete booking", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/schedule"
	"github.com/tutorbase/tutorbase/services/api/internal/scheduling"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
)

type SessionHandler struct {
	classes *storage.ClassRepository
	rooms   *storage.RoomRepository
}

func NewSessionHandler(classes *storage.ClassRepository, rooms *storage.RoomRepository) *SessionHandler {
	return &SessionHandler{classes: classes, rooms: rooms}
}

// List returns sessions in a date range. Admins may filter by any tutor or
// student; tutors and students are pinned to their own.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	tutorID := strings.TrimSpace(r.URL.Query().Get("tutor_id"))
	studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
	if user, found := CurrentUser(r.Context()); found {
		switch user.Role {
		case model.RoleTutor:
			tutorID, studentID = user.ID, ""
		case model.RoleStudent:
			tutorID, studentID = "", user.ID
		}
	}

	var (
		sessions []model.ClassSession
		err      error
	)
	switch {
	case studentID != "":
		sessions, err = h.classes.ListSessionsByStudent(r.Context(), studentID, from, to)
	case tutorID != "":
		sessions, err = h.classes.ListSessionsByTutor(r.Context(), tutorID, from, to)
	default:
		http.Error(w, "tutor_id or student_id required", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	items := make([]sessionItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionItem(s))
	}
	writeJSON(w, http.StatusOK, items)
}

func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	now := time.Now().UTC()
	from := schedule.DateOnly(now)
	to := from.AddDate(0, 1, 0)
	if fromStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", fromStr, time.UTC)
		if err != nil {
			http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if toStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", toStr, time.UTC)
		if err != nil {
			http.Error(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	if to.Before(from) {
		http.Error(w, "to precedes from", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

type rescheduleRequest struct {
	SessionID string `json:"session_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Reschedule moves a session to a new date and time. A tutor conflict at the
// target aborts; the current room is kept only if it is still free there,
// otherwise the session goes roomless. Time, booking and room link all change
// in one transaction.
func (h *SessionHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
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
	tx, err := h.classes.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sess, err := h.classes.GetSessionForUpdateTx(ctx, tx, req.SessionID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if sess.Status == model.SessionCancelled || sess.Status == model.SessionCompleted {
		http.Error(w, "session can no longer be rescheduled", http.StatusConflict)
		return
	}
	if !h.allowTutor(r, sess.TutorID, w) {
		return
	}

	busy, err := h.classes.TutorBusyOnTx(ctx, tx, sess.TutorID, date, sess.ID)
	if err != nil {
		http.Error(w, "failed to check tutor availability", http.StatusInternalServerError)
		return
	}
	if c := scheduling.FindConflict(scheduling.SessionSlots(busy), req.StartTime, req.EndTime); c != nil {
		http.Error(w, "tutor already booked on "+date.Format("2006-01-02")+" between "+c.Start+" and "+c.End, http.StatusConflict)
		return
	}

	if err := h.classes.UpdateSessionTimeTx(ctx, tx, sess.ID, date, req.StartTime, req.EndTime); err != nil {
		http.Error(w, "failed to reschedule session", http.StatusInternalServerError)
		return
	}
	if err := h.rooms.DeleteBookingBySessionTx(ctx, tx, sess.ID); err != nil {
		http.Error(w, "failed to release booking", http.StatusInternalServerError)
		return
	}

	roomID := ""
	if sess.RoomID != "" {
		bookings, err := h.rooms.BookingsOnTx(ctx, tx, sess.RoomID, date)
		if err != nil {
			http.Error(w, "failed to check room availability", http.StatusInternalServerError)
			return
		}
		if scheduling.RoomFree(bookings, req.StartTime, req.EndTime) {
			roomID = sess.RoomID
		}
	}
	if err := h.classes.SetSessionRoomTx(ctx, tx, sess.ID, roomID); err != nil {
		http.Error(w, "failed to update room link", http.StatusInternalServerError)
		return
	}
	if roomID != "" {
		if err := h.rooms.InsertBookingTx(ctx, tx, model.Booking{
			ID:        uuid.NewString(),
			RoomID:    roomID,
			Date:      date,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			ClassID:   sess.ClassID,
			SessionID: sess.ID,
		}); err != nil {
			http.Error(w, "failed to rebook room", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	sess.Date = date
	sess.StartTime = req.StartTime
	sess.EndTime = req.EndTime
	sess.Status = model.SessionRescheduled
	sess.RoomID = roomID
	writeJSON(w, http.StatusOK, toSessionItem(sess))
}

type sessionStatusRequest struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// UpdateStatus marks a session completed or cancelled. Cancelling releases
// the room booking in the same transaction.
func (h *SessionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sessionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Status = strings.TrimSpace(req.Status)
	if req.SessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	if req.Status != model.SessionCompleted && req.Status != model.SessionCancelled {
		http.Error(w, "status must be completed or cancelled", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.classes.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sess, err := h.classes.GetSessionForUpdateTx(ctx, tx, req.SessionID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if !h.allowTutor(r, sess.TutorID, w) {
		return
	}
	if sess.Status == req.Status {
		writeJSON(w, http.StatusOK, toSessionItem(sess))
		return
	}

	if err := h.classes.UpdateSessionStatusTx(ctx, tx, sess.ID, req.Status); err != nil {
		http.Error(w, "failed to update status", http.StatusInternalServerError)
		return
	}
	if req.Status == model.SessionCancelled {
		if err := h.rooms.DeleteBookingBySessionTx(ctx, tx, sess.ID); err != nil {
			http.Error(w, "failed to release booking", http.StatusInternalServerError)
			return
		}
		if err := h.classes.SetSessionRoomTx(ctx, tx, sess.ID, ""); err != nil {
			http.Error(w, "failed to clear room link", http.StatusInternalServerError)
			return
		}
		sess.RoomID = ""
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	sess.Status = req.Status
	writeJSON(w, http.StatusOK, toSessionItem(sess))
}

type attendanceRequest struct {
	SessionID string `json:"session_id"`
	Entries   []struct {
		StudentID string `json:"student_id"`
		Present   bool   `json:"present"`
		Note      string `json:"note"`
	} `json:"entries"`
}

func (h *SessionHandler) PutAttendance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req attendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	sess, err := h.classes.GetSession(ctx, req.SessionID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if !h.allowTutor(r, sess.TutorID, w) {
		return
	}

	entries := make([]model.Attendance, 0, len(req.Entries))
	for _, e := range req.Entries {
		sid := strings.TrimSpace(e.StudentID)
		if sid == "" {
			http.Error(w, "student_id required on every entry", http.StatusBadRequest)
			return
		}
		entries = append(entries, model.Attendance{
			SessionID: req.SessionID,
			StudentID: sid,
			Present:   e.Present,
			Note:      strings.TrimSpace(e.Note),
		})
	}
	if err := h.classes.ReplaceAttendance(ctx, req.SessionID, entries); err != nil {
		if storage.IsForeignKeyViolation(err) {
			http.Error(w, "unknown student reference", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to save attendance", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	entries, err := h.classes.ListAttendance(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "failed to list attendance", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type assignRoomRequest struct {
	SessionID string `json:"session_id"`
	RoomID    string `json:"room_id"`
}

// AssignRoom books a room for an existing session, replacing any current
// booking. An occupied room is a 409; class creation's silent degrade applies
// only to bulk expansion, an explicit assignment fails loudly.
func (h *SessionHandler) AssignRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req assignRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.RoomID = strings.TrimSpace(req.RoomID)
	if req.SessionID == "" || req.RoomID == "" {
		http.Error(w, "session_id and room_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	exists, err := h.rooms.Exists(ctx, req.RoomID)
	if err != nil {
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	tx, err := h.classes.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sess, err := h.classes.GetSessionForUpdateTx(ctx, tx, req.SessionID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if sess.Status == model.SessionCancelled {
		http.Error(w, "session is cancelled", http.StatusConflict)
		return
	}

	bookings, err := h.rooms.BookingsOnTx(ctx, tx, req.RoomID, sess.Date)
	if err != nil {
		http.Error(w, "failed to check room availability", http.StatusInternalServerError)
		return
	}
	// The session's own booking does not block a move within the same room.
	free := make([]model.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.SessionID != sess.ID {
			free = append(free, b)
		}
	}
	if !scheduling.RoomFree(free, sess.StartTime, sess.EndTime) {
		http.Error(w, "room is not available for that time", http.StatusConflict)
		return
	}

	if err := h.rooms.DeleteBookingBySessionTx(ctx, tx, sess.ID); err != nil {
		http.Error(w, "failed to release booking", http.StatusInternalServerError)
		return
	}
	if err := h.classes.SetSessionRoomTx(ctx, tx, sess.ID, req.RoomID); err != nil {
		http.Error(w, "failed to set room", http.StatusInternalServerError)
		return
	}
	if err := h.rooms.InsertBookingTx(ctx, tx, model.Booking{
		ID:        uuid.NewString(),
		RoomID:    req.RoomID,
		Date:      sess.Date,
		StartTime: sess.StartTime,
		EndTime:   sess.EndTime,
		ClassID:   sess.ClassID,
		SessionID: sess.ID,
	}); err != nil {
		http.Error(w, "failed to book room", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	sess.RoomID = req.RoomID
	writeJSON(w, http.StatusOK, toSessionItem(sess))
}

type releaseRoomRequest struct {
	SessionID string `json:"session_id"`
}

func (h *SessionHandler) ReleaseRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req releaseRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.classes.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sess, err := h.classes.GetSessionForUpdateTx(ctx, tx, req.SessionID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	if err := h.rooms.DeleteBookingBySessionTx(ctx, tx, sess.ID); err != nil {
		http.Error(w, "failed to release booking", http.StatusInternalServerError)
		return
	}
	if err := h.classes.SetSessionRoomTx(ctx, tx, sess.ID, ""); err != nil {
		http.Error(w, "failed to clear room link", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	sess.RoomID = ""
	writeJSON(w, http.StatusOK, toSessionItem(sess))
}

// allowTutor lets admins through and tutors only for their own sessions.
func (h *SessionHandler) allowTutor(r *http.Request, tutorID string, w http.ResponseWriter) bool {
	user, ok := CurrentUser(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if user.Role == model.RoleTutor && user.ID != tutorID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tutorbase/tutorbase/libs/db"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
)

type RoomRepository struct {
	pool *db.Pool
}

func NewRoomRepository(pool *db.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func (r *RoomRepository) Create(ctx context.Context, room model.Room) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rooms (id, name, capacity, location, active)
		VALUES ($1, $2, $3, $4, $5)
	`, room.ID, room.Name, room.Capacity, room.Location, room.Active)
	return err
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (model.Room, error) {
	var room model.Room
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, capacity, location, active, created_at
		FROM rooms
		WHERE id = $1
	`, id).Scan(&room.ID, &room.Name, &room.Capacity, &room.Location, &room.Active, &room.CreatedAt)
	return room, err
}

func (r *RoomRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1 AND active)
	`, id).Scan(&exists)
	return exists, err
}

func (r *RoomRepository) List(ctx context.Context) ([]model.Room, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, capacity, location, active, created_at
		FROM rooms
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.Capacity, &room.Location, &room.Active, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (r *RoomRepository) Update(ctx context.Context, room model.Room) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE rooms
		SET name = $2, capacity = $3, location = $4, active = $5
		WHERE id = $1
	`, room.ID, room.Name, room.Capacity, room.Location, room.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const bookingColumns = `id::text, room_id::text, date, start_time, end_time,
	COALESCE(class_id::text, ''), COALESCE(session_id::text, ''), COALESCE(user_id::text, ''), description, created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.RoomID, &b.Date, &b.StartTime, &b.EndTime, &b.ClassID, &b.SessionID, &b.UserID, &b.Description, &b.CreatedAt)
	return b, err
}

// BookingsOn lists a room's bookings for one calendar date.
func (r *RoomRepository) BookingsOn(ctx context.Context, roomID string, date time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM room_bookings
		WHERE room_id = $1 AND date = $2
		ORDER BY start_time
	`, roomID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *RoomRepository) BookingsOnTx(ctx context.Context, tx pgx.Tx, roomID string, date time.Time) ([]model.Booking, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM room_bookings
		WHERE room_id = $1 AND date = $2
		ORDER BY start_time
	`, roomID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *RoomRepository) InsertBookingTx(ctx context.Context, tx pgx.Tx, b model.Booking) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO room_bookings (id, room_id, date, start_time, end_time, class_id, session_id, user_id, description)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, NULLIF($7, '')::uuid, NULLIF($8, '')::uuid, $9)
	`, b.ID, b.RoomID, b.Date, b.StartTime, b.EndTime, b.ClassID, b.SessionID, b.UserID, b.Description)
	return err
}

// DeleteBookingBySessionTx releases the booking that a session holds, if any.
// Session→booking release always goes through here so the two sides of the
// link can never diverge outside a transaction.
func (r *RoomRepository) DeleteBookingBySessionTx(ctx context.Context, tx pgx.Tx, sessionID string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM room_bookings WHERE session_id = $1
	`, sessionID)
	return err
}

func (r *RoomRepository) DeleteBooking(ctx context.Context, roomID, bookingID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM room_bookings
		WHERE id = $1 AND room_id = $2 AND session_id IS NULL
	`, bookingID, roomID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

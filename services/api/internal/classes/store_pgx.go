package classes

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tutorbase/tutorbase/libs/outbox"
	"github.com/tutorbase/tutorbase/services/api/internal/model"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
)

// PgxStore adapts the pgx repositories to the orchestrator's Store. All
// methods of the TxStore it hands out run on one pgx transaction.
type PgxStore struct {
	Classes  *storage.ClassRepository
	Rooms    *storage.RoomRepository
	Payments *storage.PaymentRepository
	Outbox   *outbox.Repository
}

func (s *PgxStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	tx, err := s.Classes.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(ctx, &pgxTxStore{store: s, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgxTxStore struct {
	store *PgxStore
	tx    pgx.Tx
}

func (t *pgxTxStore) InsertClass(ctx context.Context, c *model.Class) error {
	return t.store.Classes.InsertClassTx(ctx, t.tx, c)
}

func (t *pgxTxStore) InsertSession(ctx context.Context, s *model.ClassSession) error {
	return t.store.Classes.InsertSessionTx(ctx, t.tx, s)
}

func (t *pgxTxStore) TutorBusyOn(ctx context.Context, tutorID string, date time.Time, excludeSessionID string) ([]model.ClassSession, error) {
	return t.store.Classes.TutorBusyOnTx(ctx, t.tx, tutorID, date, excludeSessionID)
}

func (t *pgxTxStore) RoomBookings(ctx context.Context, roomID string, date time.Time) ([]model.Booking, error) {
	return t.store.Rooms.BookingsOnTx(ctx, t.tx, roomID, date)
}

func (t *pgxTxStore) InsertBooking(ctx context.Context, b model.Booking) error {
	return t.store.Rooms.InsertBookingTx(ctx, t.tx, b)
}

func (t *pgxTxStore) InsertPayment(ctx context.Context, p *model.Payment) error {
	return t.store.Payments.InsertPaymentTx(ctx, t.tx, p)
}

func (t *pgxTxStore) InsertPayout(ctx context.Context, p *model.Payout) error {
	return t.store.Payments.InsertPayoutTx(ctx, t.tx, p)
}

func (t *pgxTxStore) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.store.Outbox.Insert(ctx, t.tx, evt)
}

package db

import (
	"context"
	"errors"
	"time"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrLockTimeout is the only store error a caller may retry.
	ErrLockTimeout = errors.New("lock wait timed out")
)

// BookingTx is the store as seen from inside a trainer-day transaction.
type BookingTx interface {
	// LockActiveBookings returns the trainer's pending and confirmed bookings
	// on date, holding an exclusive lock on them until the transaction ends.
	LockActiveBookings(ctx context.Context, trainerID uint, date time.Time, excludeID string) ([]models.Booking, error)
	InsertBooking(ctx context.Context, b *models.Booking) error
}

type BookingFilter struct {
	TrainerID uint
	ClientID  uint
	Status    models.BookingStatus
	Page      int
	PageSize  int
}

// Offset and limit for a 1-based page.
func (f BookingFilter) window() (int, int) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size <= 0 {
		size = 20
	}
	return (page - 1) * size, size
}

type BookingStore interface {
	// WithTrainerDay runs fn in one atomic transaction that is serialized
	// against every other WithTrainerDay call for the same trainer and date.
	// If fn returns an error nothing it wrote becomes visible.
	WithTrainerDay(ctx context.Context, trainerID uint, date time.Time, fn func(tx BookingTx) error) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	// UpdateBooking applies mutate to a single row under a row lock and
	// persists it when mutate reports a change.
	UpdateBooking(ctx context.Context, id string, mutate func(b *models.Booking) (bool, error)) (*models.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, int64, error)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

package booking

import (
	"context"
	"time"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/db"
)

type ConflictQuery struct {
	TrainerID        uint
	SessionDate      time.Time
	Start            models.ClockTime
	End              models.ClockTime
	ExcludeBookingID string
}

// findConflict must run inside WithTrainerDay: the candidate read locks the
// trainer's active bookings for the day until the transaction finishes.
func findConflict(ctx context.Context, tx db.BookingTx, q ConflictQuery) (*models.Booking, error) {
	candidates, err := tx.LockActiveBookings(ctx, q.TrainerID, q.SessionDate, q.ExcludeBookingID)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].Overlaps(q.Start, q.End) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// FindConflict reports an active booking of the trainer overlapping
// [Start, End) on SessionDate, or nil when the range is free.
func (m *Manager) FindConflict(ctx context.Context, q ConflictQuery) (*models.Booking, error) {
	if q.Start >= q.End {
		return nil, &ValidationError{Field: "end_time", Message: "End time must be after start time"}
	}
	if _, err := m.bookableTrainer(ctx, q.TrainerID, false); err != nil {
		return nil, err
	}

	var conflict *models.Booking
	err := m.store.WithTrainerDay(ctx, q.TrainerID, q.SessionDate, func(tx db.BookingTx) error {
		var err error
		conflict, err = findConflict(ctx, tx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

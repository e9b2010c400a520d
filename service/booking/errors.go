package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/db"
)

// ErrLockTimeout is returned when the trainer-day lock could not be taken in
// time. It is the only error a caller should retry.
var ErrLockTimeout = db.ErrLockTimeout

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError reports the active booking that occupies the requested range.
type ConflictError struct {
	BookingID string
	Date      time.Time
	Start     models.ClockTime
	End       models.ClockTime
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("This time slot is already booked. Conflict with existing booking from %s to %s.", e.Start, e.End)
}

type CancellationWindowError struct {
	Deadline time.Time
}

func (e *CancellationWindowError) Error() string {
	return "Booking cannot be cancelled (must be 24 hours before session)"
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	return e.Message
}

// TransitionError is returned when a lifecycle operation is not allowed
// from the booking's current status.
type TransitionError struct {
	From   models.BookingStatus
	Action string
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s a %s booking: %s", e.Action, e.From, e.Reason)
	}
	return fmt.Sprintf("cannot %s a %s booking", e.Action, e.From)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

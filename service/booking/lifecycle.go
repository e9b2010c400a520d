package booking

import (
	"time"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
)

// CancellationWindow is how long before the session start cancellation closes.
const CancellationWindow = 24 * time.Hour

type Party string

const (
	PartyClient  Party = "client"
	PartyTrainer Party = "trainer"
	PartyAdmin   Party = "admin"
)

// Actor is the capability a caller holds over bookings. ID is the user id
// for clients and the trainer profile id for trainers.
type Actor struct {
	Party Party
	ID    uint
}

func (a Actor) owns(b *models.Booking) bool {
	switch a.Party {
	case PartyClient:
		return b.ClientID == a.ID
	case PartyTrainer:
		return b.TrainerID == a.ID
	}
	return false
}

func (a Actor) canView(b *models.Booking) bool {
	return a.Party == PartyAdmin || a.owns(b)
}

func requireTrainer(b *models.Booking, actor Actor, action string) error {
	if actor.Party != PartyTrainer || !actor.owns(b) {
		return &PermissionError{Message: "Only the booked trainer can " + action + " this booking"}
	}
	return nil
}

func confirm(b *models.Booking, actor Actor) (bool, error) {
	if err := requireTrainer(b, actor, "confirm"); err != nil {
		return false, err
	}
	switch b.Status {
	case models.StatusPending:
		b.Status = models.StatusConfirmed
		return true, nil
	case models.StatusConfirmed:
		return false, nil
	}
	return false, &TransitionError{From: b.Status, Action: "confirm"}
}

// finish moves a confirmed booking whose session has ended to target.
func finish(b *models.Booking, actor Actor, now time.Time, loc *time.Location, target models.BookingStatus, action string) (bool, error) {
	if err := requireTrainer(b, actor, action); err != nil {
		return false, err
	}
	if b.Status == target {
		return false, nil
	}
	if b.Status != models.StatusConfirmed {
		return false, &TransitionError{From: b.Status, Action: action, Reason: "booking is not confirmed"}
	}
	if !now.After(b.EndsAt(loc)) {
		return false, &TransitionError{From: b.Status, Action: action, Reason: "session has not ended yet"}
	}
	b.Status = target
	return true, nil
}

func cancellationDeadline(b *models.Booking, loc *time.Location) time.Time {
	return b.StartsAt(loc).Add(-CancellationWindow)
}

func canCancel(b *models.Booking, now time.Time, loc *time.Location) bool {
	return b.Status.IsActive() && now.Before(cancellationDeadline(b, loc))
}

func cancel(b *models.Booking, actor Actor, reason string, now time.Time, loc *time.Location) (bool, error) {
	var target models.BookingStatus
	switch actor.Party {
	case PartyClient:
		target = models.StatusCancelledByClient
	case PartyTrainer:
		target = models.StatusCancelledByTrainer
	}
	if target == "" || !actor.owns(b) {
		return false, &PermissionError{Message: "Only the booking's client or trainer can cancel it"}
	}
	if !b.Status.IsActive() || b.CancelledAt != nil {
		return false, &TransitionError{From: b.Status, Action: "cancel"}
	}
	deadline := cancellationDeadline(b, loc)
	if !now.Before(deadline) {
		return false, &CancellationWindowError{Deadline: deadline}
	}

	cancelledAt := now
	b.Status = target
	b.CancellationReason = reason
	b.CancelledAt = &cancelledAt
	return true, nil
}

func updateNotes(b *models.Booking, actor Actor, notes string) (bool, error) {
	if !actor.owns(b) {
		return false, &PermissionError{Message: "Only the booking's client or trainer can edit notes"}
	}
	field := &b.ClientNotes
	if actor.Party == PartyTrainer {
		field = &b.TrainerNotes
	}
	if *field == notes {
		return false, nil
	}
	*field = notes
	return true, nil
}

func setPaymentStatus(b *models.Booking, status models.PaymentStatus) (bool, error) {
	switch status {
	case models.PaymentUnpaid, models.PaymentPending, models.PaymentPaid, models.PaymentFailed, models.PaymentRefunded:
	default:
		return false, &ValidationError{Field: "payment_status", Message: "unknown payment status " + string(status)}
	}
	if b.PaymentStatus == status {
		return false, nil
	}
	b.PaymentStatus = status
	return true, nil
}

package booking

import (
	"time"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
)

// Event is the payload published for every booking state change.
type Event struct {
	Event         string               `json:"event"`
	BookingID     string               `json:"booking_id"`
	TrainerID     uint                 `json:"trainer_id"`
	ClientID      uint                 `json:"client_id"`
	Status        models.BookingStatus `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	SessionDate   string               `json:"session_date"`
	StartTime     models.ClockTime     `json:"start_time"`
	EndTime       models.ClockTime     `json:"end_time"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func NewEvent(event string, b *models.Booking) Event {
	return Event{
		Event:         event,
		BookingID:     b.ID,
		TrainerID:     b.TrainerID,
		ClientID:      b.ClientID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		SessionDate:   b.SessionDate.Format(time.DateOnly),
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		OccurredAt:    b.UpdatedAt,
	}
}

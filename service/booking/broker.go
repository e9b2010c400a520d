package booking

import (
	"context"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
)

type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// BrokerPublisher forwards booking events to a message broker using the
// event name as the routing key.
type BrokerPublisher struct {
	pub JSONPublisher
}

func NewBrokerPublisher(pub JSONPublisher) *BrokerPublisher {
	return &BrokerPublisher{pub: pub}
}

func (p *BrokerPublisher) PublishBookingEvent(ctx context.Context, event string, b *models.Booking) error {
	return p.pub.PublishJSON(ctx, event, NewEvent(event, b))
}

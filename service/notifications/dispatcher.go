package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/service/booking"
	"github.com/KAsare1/trainer-booking-server/service/ws"
)

type Recipients interface {
	User(ctx context.Context, id uint) (*models.User, error)
	// TrainerProfile returns the profile with its User loaded.
	TrainerProfile(ctx context.Context, id uint) (*models.TrainerProfile, error)
	DeviceTokens(ctx context.Context, userID uint) ([]string, error)
	RemoveTokens(ctx context.Context, tokens []string) error
	RecordHistory(ctx context.Context, entries []models.NotificationHistory) error
}

type LiveSender interface {
	SendToUser(userID uint, msg ws.Message) bool
}

type Site struct {
	Name string
	URL  string
}

// Dispatcher fans booking notifications out over email, push and the live
// websocket, recording one history row per delivery attempt.
type Dispatcher struct {
	recipients Recipients
	email      EmailSender
	push       PushSender
	live       LiveSender
	site       Site
	now        func() time.Time
}

type Option func(*Dispatcher)

func WithEmail(s EmailSender) Option { return func(d *Dispatcher) { d.email = s } }
func WithPush(s PushSender) Option   { return func(d *Dispatcher) { d.push = s } }
func WithLive(s LiveSender) Option   { return func(d *Dispatcher) { d.live = s } }

func NewDispatcher(recipients Recipients, site Site, opts ...Option) *Dispatcher {
	d := &Dispatcher{recipients: recipients, site: site, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type notice struct {
	subject string
	title   string
	body    string
}

// NotifyBookingCreated tells the client their request was received and the
// trainer that a new request is waiting. A party counts as notified when
// any channel reached them.
func (d *Dispatcher) NotifyBookingCreated(ctx context.Context, b *models.Booking) (bool, bool, error) {
	client, err := d.recipients.User(ctx, b.ClientID)
	if err != nil {
		return false, false, fmt.Errorf("load client %d: %w", b.ClientID, err)
	}
	trainer, err := d.recipients.TrainerProfile(ctx, b.TrainerID)
	if err != nil {
		return false, false, fmt.Errorf("load trainer %d: %w", b.TrainerID, err)
	}
	if trainer.User == nil {
		return false, false, fmt.Errorf("trainer %d has no user account", b.TrainerID)
	}

	var history []models.NotificationHistory
	event := booking.NewEvent(booking.EventCreated, b)

	clientNotified := d.deliver(ctx, b, client, d.clientConfirmation(b, client, trainer.User), event, &history)
	trainerNotified := d.deliver(ctx, b, trainer.User, d.trainerRequest(b, client, trainer.User), event, &history)

	if err := d.recipients.RecordHistory(ctx, history); err != nil {
		log.Error().Err(err).Str("booking_id", b.ID).Msg("failed to record notification history")
	}
	return clientNotified, trainerNotified, nil
}

// PublishBookingEvent pushes lifecycle changes to both parties' open
// websocket connections.
func (d *Dispatcher) PublishBookingEvent(ctx context.Context, event string, b *models.Booking) error {
	if d.live == nil || event == booking.EventCreated {
		return nil
	}
	trainer, err := d.recipients.TrainerProfile(ctx, b.TrainerID)
	if err != nil {
		return fmt.Errorf("load trainer %d: %w", b.TrainerID, err)
	}
	msg := ws.Message{Type: event, Data: booking.NewEvent(event, b), Timestamp: d.now()}
	d.live.SendToUser(b.ClientID, msg)
	d.live.SendToUser(trainer.UserID, msg)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, b *models.Booking, to *models.User, n notice, event booking.Event, history *[]models.NotificationHistory) bool {
	notified := false
	record := func(channel string, err error) {
		entry := models.NotificationHistory{
			UserID:    to.ID,
			BookingID: b.ID,
			Channel:   channel,
			Title:     n.title,
			Body:      n.body,
			Status:    models.DeliverySent,
			SentAt:    d.now(),
		}
		if err != nil {
			entry.Status = models.DeliveryFailed
			entry.Error = err.Error()
		} else {
			notified = true
		}
		*history = append(*history, entry)
	}

	if d.email != nil && to.Email != "" {
		err := d.email.SendEmail(to.Email, n.subject, n.body)
		if err != nil {
			log.Error().Err(err).Str("booking_id", b.ID).Str("to", to.Email).Msg("failed to send booking email")
		}
		record(models.ChannelEmail, err)
	}

	if d.push != nil {
		d.sendPush(ctx, b, to, n, record)
	}

	if d.live != nil && d.live.SendToUser(to.ID, ws.Message{Type: event.Event, Data: event, Timestamp: d.now()}) {
		record(models.ChannelLive, nil)
	}
	return notified
}

func (d *Dispatcher) sendPush(ctx context.Context, b *models.Booking, to *models.User, n notice, record func(string, error)) {
	tokens, err := d.recipients.DeviceTokens(ctx, to.ID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", to.ID).Msg("failed to load push devices")
		return
	}
	if len(tokens) == 0 {
		return
	}

	invalid, err := d.push.Push(tokens, n.title, n.subject, map[string]string{
		"type":       booking.EventCreated,
		"booking_id": b.ID,
	})
	if len(invalid) > 0 {
		if rmErr := d.recipients.RemoveTokens(ctx, invalid); rmErr != nil {
			log.Warn().Err(rmErr).Msg("failed to remove invalid push tokens")
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("booking_id", b.ID).Uint("user_id", to.ID).Msg("failed to send push notification")
	}
	record(models.ChannelPush, err)
}

func (d *Dispatcher) clientConfirmation(b *models.Booking, client, trainer *models.User) notice {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hi %s,\n\n", firstNameOr(client, "Client"))
	fmt.Fprintf(&sb, "Your session request with %s has been received and is awaiting confirmation.\n\n", trainer.FullName())
	d.writeDetails(&sb, b)
	fmt.Fprintf(&sb, "\nManage your bookings at %s\n\n%s\n", d.site.URL, d.site.Name)
	return notice{
		subject: "Booking Confirmation - " + b.SessionDate.Format("Jan 02, 2006"),
		title:   "Booking request sent",
		body:    sb.String(),
	}
}

func (d *Dispatcher) trainerRequest(b *models.Booking, client, trainer *models.User) notice {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hi %s,\n\n", firstNameOr(trainer, "Trainer"))
	fmt.Fprintf(&sb, "%s has requested a session with you.\n\n", client.FullName())
	d.writeDetails(&sb, b)
	if b.ClientNotes != "" {
		fmt.Fprintf(&sb, "Notes from the client: %s\n", b.ClientNotes)
	}
	fmt.Fprintf(&sb, "\nConfirm or decline at %s\n\n%s\n", d.site.URL, d.site.Name)
	return notice{
		subject: "New Booking Request - " + b.SessionDate.Format("Jan 02, 2006"),
		title:   "New booking request",
		body:    sb.String(),
	}
}

func (d *Dispatcher) writeDetails(sb *strings.Builder, b *models.Booking) {
	fmt.Fprintf(sb, "Date: %s\n", b.SessionDate.Format("Monday, January 2, 2006"))
	fmt.Fprintf(sb, "Time: %s - %s (%d minutes)\n", b.StartTime, b.EndTime, b.DurationMinutes)
	if b.LocationAddress != "" {
		fmt.Fprintf(sb, "Location: %s\n", b.LocationAddress)
	}
	fmt.Fprintf(sb, "Total: $%s\n", b.TotalPrice.StringFixed(2))
}

func firstNameOr(u *models.User, fallback string) string {
	if u.FirstName == "" {
		return fallback
	}
	return u.FirstName
}

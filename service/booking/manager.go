package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/db"
)

// DurationToleranceMinutes is the allowed gap between duration_minutes and
// end_time - start_time.
const DurationToleranceMinutes = 1

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

const (
	EventCreated   = "booking.created"
	EventConfirmed = "booking.confirmed"
	EventCancelled = "booking.cancelled"
	EventCompleted = "booking.completed"
	EventNoShow    = "booking.no_show"
)

// TrainerDirectory supplies trainer rates and publication state. It returns
// db.ErrNotFound for unknown trainers.
type TrainerDirectory interface {
	Trainer(ctx context.Context, id uint) (*models.TrainerProfile, error)
}

type Notifier interface {
	NotifyBookingCreated(ctx context.Context, b *models.Booking) (clientNotified, trainerNotified bool, err error)
}

type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, event string, b *models.Booking) error
}

type CreateRequest struct {
	TrainerID       uint      `validate:"required"`
	ClientID        uint      `validate:"required"`
	SessionDate     time.Time `validate:"required"`
	StartTime       models.ClockTime
	EndTime         models.ClockTime
	DurationMinutes int    `validate:"gte=15"`
	LocationAddress string `validate:"max=255"`
	Notes           string
	// TotalPrice overrides the computed price when set.
	TotalPrice *decimal.Decimal
}

type Manager struct {
	store    db.BookingStore
	trainers TrainerDirectory
	notifier Notifier
	events   []EventPublisher
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(m *Manager) { m.loc = loc }
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithEventPublisher adds a publisher; every publisher receives every event.
func WithEventPublisher(p EventPublisher) Option {
	return func(m *Manager) { m.events = append(m.events, p) }
}

func NewManager(store db.BookingStore, trainers TrainerDirectory, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		trainers: trainers,
		validate: validator.New(),
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Location() *time.Location {
	return m.loc
}

// CreateBooking validates the request, then checks for conflicts and inserts
// the booking as one transaction locked on (trainer, session date).
func (m *Manager) CreateBooking(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	if err := m.validateCreate(req); err != nil {
		return nil, err
	}
	trainer, err := m.bookableTrainer(ctx, req.TrainerID, true)
	if err != nil {
		return nil, err
	}

	now := m.now()
	b := &models.Booking{
		ID:              uuid.NewString(),
		TrainerID:       req.TrainerID,
		ClientID:        req.ClientID,
		SessionDate:     models.DateOf(req.SessionDate),
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		DurationMinutes: req.DurationMinutes,
		LocationAddress: req.LocationAddress,
		HourlyRate:      trainer.HourlyRate,
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentUnpaid,
		ClientNotes:     req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.TotalPrice != nil {
		b.TotalPrice = *req.TotalPrice
	}
	b.EnsureTotalPrice()

	err = m.store.WithTrainerDay(ctx, b.TrainerID, b.SessionDate, func(tx db.BookingTx) error {
		conflict, err := findConflict(ctx, tx, ConflictQuery{
			TrainerID:   b.TrainerID,
			SessionDate: b.SessionDate,
			Start:       b.StartTime,
			End:         b.EndTime,
		})
		if err != nil {
			return err
		}
		if conflict != nil {
			return &ConflictError{
				BookingID: conflict.ID,
				Date:      conflict.SessionDate,
				Start:     conflict.StartTime,
				End:       conflict.EndTime,
			}
		}
		return tx.InsertBooking(ctx, b)
	})
	if err != nil {
		var conflict *ConflictError
		switch {
		case errors.As(err, &conflict):
			log.Info().Uint("trainer_id", b.TrainerID).Str("conflicting_booking", conflict.BookingID).
				Msg("booking rejected: slot already taken")
		case IsRetryable(err):
			log.Warn().Err(err).Uint("trainer_id", b.TrainerID).Msg("booking lock wait timed out")
		}
		return nil, err
	}

	log.Info().Str("booking_id", b.ID).Uint("trainer_id", b.TrainerID).Uint("client_id", b.ClientID).
		Str("date", b.SessionDate.Format(time.DateOnly)).Str("start", b.StartTime.String()).Str("end", b.EndTime.String()).
		Msg("booking created")

	m.notifyCreated(ctx, b)
	m.publish(ctx, EventCreated, b)
	return b, nil
}

func (m *Manager) validateCreate(req CreateRequest) error {
	if err := m.validate.Struct(req); err != nil {
		return translateValidation(err)
	}
	today := models.DateOf(m.now().In(m.loc))
	if models.DateOf(req.SessionDate).Before(today) {
		return &ValidationError{Field: "session_date", Message: "Cannot book sessions in the past"}
	}
	if req.StartTime < 0 || req.EndTime > models.EndOfDay {
		return &ValidationError{Field: "start_time", Message: "Times must fall within a single day"}
	}
	if req.StartTime >= req.EndTime {
		return &ValidationError{Field: "end_time", Message: "End time must be after start time"}
	}
	calculated := int(req.EndTime - req.StartTime)
	if diff := calculated - req.DurationMinutes; diff > DurationToleranceMinutes || diff < -DurationToleranceMinutes {
		return &ValidationError{
			Field:   "duration_minutes",
			Message: fmt.Sprintf("Duration (%d min) doesn't match time range (%d min)", req.DurationMinutes, calculated),
		}
	}
	return nil
}

func (m *Manager) bookableTrainer(ctx context.Context, id uint, requirePublished bool) (*models.TrainerProfile, error) {
	trainer, err := m.trainers.Trainer(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &NotFoundError{Resource: "trainer", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, err
	}
	if requirePublished && !trainer.Published {
		return nil, &ValidationError{Field: "trainer", Message: "Trainer not found or not available"}
	}
	return trainer, nil
}

func (m *Manager) notifyCreated(ctx context.Context, b *models.Booking) {
	if m.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("booking_id", b.ID).Interface("panic", r).Msg("booking notification panicked")
		}
	}()

	clientSent, trainerSent, err := m.notifier.NotifyBookingCreated(context.WithoutCancel(ctx), b)
	if err != nil {
		log.Error().Err(err).Str("booking_id", b.ID).Msg("failed to send booking notifications")
		return
	}
	log.Info().Str("booking_id", b.ID).Bool("client", clientSent).Bool("trainer", trainerSent).
		Msg("booking notifications sent")
}

func (m *Manager) publish(ctx context.Context, event string, b *models.Booking) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range m.events {
		if err := p.PublishBookingEvent(ctx, event, b); err != nil {
			log.Warn().Err(err).Str("event", event).Str("booking_id", b.ID).Msg("failed to publish booking event")
		}
	}
}

func (m *Manager) Confirm(ctx context.Context, id string, actor Actor) (*models.Booking, error) {
	return m.apply(ctx, id, EventConfirmed, func(b *models.Booking, now time.Time) (bool, error) {
		return confirm(b, actor)
	})
}

func (m *Manager) Cancel(ctx context.Context, id string, actor Actor, reason string) (*models.Booking, error) {
	return m.apply(ctx, id, EventCancelled, func(b *models.Booking, now time.Time) (bool, error) {
		return cancel(b, actor, reason, now, m.loc)
	})
}

func (m *Manager) Complete(ctx context.Context, id string, actor Actor) (*models.Booking, error) {
	return m.apply(ctx, id, EventCompleted, func(b *models.Booking, now time.Time) (bool, error) {
		return finish(b, actor, now, m.loc, models.StatusCompleted, "complete")
	})
}

func (m *Manager) MarkNoShow(ctx context.Context, id string, actor Actor) (*models.Booking, error) {
	return m.apply(ctx, id, EventNoShow, func(b *models.Booking, now time.Time) (bool, error) {
		return finish(b, actor, now, m.loc, models.StatusNoShow, "mark as no-show")
	})
}

func (m *Manager) UpdateNotes(ctx context.Context, id string, actor Actor, notes string) (*models.Booking, error) {
	return m.apply(ctx, id, "", func(b *models.Booking, now time.Time) (bool, error) {
		return updateNotes(b, actor, notes)
	})
}

// SetPaymentStatus is reserved for the payment collaborator.
func (m *Manager) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) (*models.Booking, error) {
	return m.apply(ctx, id, "", func(b *models.Booking, now time.Time) (bool, error) {
		return setPaymentStatus(b, status)
	})
}

func (m *Manager) MarkPaymentPending(ctx context.Context, id string) (*models.Booking, error) {
	return m.SetPaymentStatus(ctx, id, models.PaymentPending)
}

func (m *Manager) MarkPaid(ctx context.Context, id string) (*models.Booking, error) {
	return m.SetPaymentStatus(ctx, id, models.PaymentPaid)
}

func (m *Manager) MarkPaymentFailed(ctx context.Context, id string) (*models.Booking, error) {
	return m.SetPaymentStatus(ctx, id, models.PaymentFailed)
}

func (m *Manager) MarkRefunded(ctx context.Context, id string) (*models.Booking, error) {
	return m.SetPaymentStatus(ctx, id, models.PaymentRefunded)
}

func (m *Manager) apply(ctx context.Context, id, event string, mutate func(b *models.Booking, now time.Time) (bool, error)) (*models.Booking, error) {
	now := m.now()
	changed := false
	b, err := m.store.UpdateBooking(ctx, id, func(b *models.Booking) (bool, error) {
		c, err := mutate(b, now)
		if err != nil {
			return false, err
		}
		if c {
			b.UpdatedAt = now
		}
		changed = c
		return c, nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, &NotFoundError{Resource: "booking", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if changed && event != "" {
		log.Info().Str("booking_id", b.ID).Str("status", string(b.Status)).Msg("booking status changed")
		m.publish(ctx, event, b)
	}
	return b, nil
}

// Get returns a booking the actor is allowed to see.
func (m *Manager) Get(ctx context.Context, id string, actor Actor) (*models.Booking, error) {
	b, err := m.store.GetBooking(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &NotFoundError{Resource: "booking", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if !actor.canView(b) {
		return nil, &NotFoundError{Resource: "booking", ID: id}
	}
	return b, nil
}

func (m *Manager) List(ctx context.Context, actor Actor, status models.BookingStatus, page, pageSize int) ([]models.Booking, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, &ValidationError{Field: "status", Message: "unknown booking status " + string(status)}
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	filter := db.BookingFilter{Status: status, Page: page, PageSize: pageSize}
	switch actor.Party {
	case PartyClient:
		filter.ClientID = actor.ID
	case PartyTrainer:
		filter.TrainerID = actor.ID
	case PartyAdmin:
	default:
		return nil, 0, &PermissionError{Message: "Invalid user role"}
	}
	return m.store.ListBookings(ctx, filter)
}

// View is a booking with the flags clients use to render actions.
type View struct {
	*models.Booking
	CanCancel  bool `json:"can_cancel"`
	IsUpcoming bool `json:"is_upcoming"`
	IsPast     bool `json:"is_past"`
}

func (m *Manager) View(b *models.Booking) View {
	now := m.now()
	return View{
		Booking:    b,
		CanCancel:  canCancel(b, now, m.loc),
		IsUpcoming: b.IsUpcoming(now, m.loc),
		IsPast:     b.IsPast(now, m.loc),
	}
}

func translateValidation(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: fe.Field(), Message: "is required"}
	case "gte":
		return &ValidationError{Field: fe.Field(), Message: "must be at least " + fe.Param()}
	case "max":
		return &ValidationError{Field: fe.Field(), Message: "must be at most " + fe.Param() + " characters"}
	}
	return &ValidationError{Field: fe.Field(), Message: "is invalid"}
}

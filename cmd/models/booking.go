package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	StatusPending            BookingStatus = "pending"
	StatusConfirmed          BookingStatus = "confirmed"
	StatusCancelledByClient  BookingStatus = "cancelled_by_client"
	StatusCancelledByTrainer BookingStatus = "cancelled_by_trainer"
	StatusCompleted          BookingStatus = "completed"
	StatusNoShow             BookingStatus = "no_show"
)

// ActiveStatuses are the statuses that take part in conflict checks.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed}

func (s BookingStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusCancelledByClient, StatusCancelledByTrainer, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

func (s BookingStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type Booking struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TrainerID       uint            `gorm:"column:trainer_id;not null;index:idx_bookings_trainer_day,priority:1" json:"trainer_id"`
	ClientID        uint            `gorm:"column:client_id;not null;index:idx_bookings_client_day,priority:1" json:"client_id"`
	SessionDate     time.Time       `gorm:"column:session_date;type:date;not null;index:idx_bookings_trainer_day,priority:2;index:idx_bookings_client_day,priority:2" json:"session_date"`
	StartTime       ClockTime       `gorm:"column:start_time;not null" json:"start_time"`
	EndTime         ClockTime       `gorm:"column:end_time;not null" json:"end_time"`
	DurationMinutes int             `gorm:"column:duration_minutes;not null" json:"duration_minutes"`
	LocationAddress string          `gorm:"column:location_address;size:255" json:"location_address"`
	HourlyRate      decimal.Decimal `gorm:"column:hourly_rate;type:numeric(6,2);not null" json:"hourly_rate"`
	TotalPrice      decimal.Decimal `gorm:"column:total_price;type:numeric(8,2);not null" json:"total_price"`
	Status          BookingStatus   `gorm:"column:status;size:30;not null;default:pending;index:idx_bookings_trainer_day,priority:3" json:"status"`
	PaymentStatus   PaymentStatus   `gorm:"column:payment_status;size:20;not null;default:unpaid" json:"payment_status"`

	ClientNotes  string `gorm:"column:client_notes;type:text" json:"client_notes"`
	TrainerNotes string `gorm:"column:trainer_notes;type:text" json:"trainer_notes,omitempty"`

	CancellationReason string     `gorm:"column:cancellation_reason;type:text" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Trainer *TrainerProfile `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`
	Client  *User           `gorm:"foreignKey:ClientID" json:"client,omitempty"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

var sixty = decimal.NewFromInt(60)

// ComputeTotalPrice returns rate * minutes / 60 rounded half-even to cents.
func ComputeTotalPrice(hourlyRate decimal.Decimal, durationMinutes int) decimal.Decimal {
	return hourlyRate.Mul(decimal.NewFromInt(int64(durationMinutes))).Div(sixty).RoundBank(2)
}

// EnsureTotalPrice fills TotalPrice when it has not been set yet. An
// already populated price is never recomputed.
func (b *Booking) EnsureTotalPrice() {
	if !b.TotalPrice.IsZero() || b.HourlyRate.IsZero() || b.DurationMinutes <= 0 {
		return
	}
	b.TotalPrice = ComputeTotalPrice(b.HourlyRate, b.DurationMinutes)
}

// Overlaps reports whether [start, end) intersects the booking's interval.
func (b *Booking) Overlaps(start, end ClockTime) bool {
	return Overlaps(start, end, b.StartTime, b.EndTime)
}

// Overlaps is the half-open interval test: touching endpoints do not overlap.
func Overlaps(s1, e1, s2, e2 ClockTime) bool {
	return s1 < e2 && e1 > s2
}

func (b *Booking) StartsAt(loc *time.Location) time.Time {
	return b.StartTime.On(b.SessionDate, loc)
}

func (b *Booking) EndsAt(loc *time.Location) time.Time {
	return b.EndTime.On(b.SessionDate, loc)
}

func (b *Booking) IsUpcoming(now time.Time, loc *time.Location) bool {
	return b.StartsAt(loc).After(now)
}

func (b *Booking) IsPast(now time.Time, loc *time.Location) bool {
	return b.EndsAt(loc).Before(now)
}

func (b *Booking) RequiresPayment() bool {
	return b.PaymentStatus == PaymentUnpaid || b.PaymentStatus == PaymentFailed
}

func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentPaid
}

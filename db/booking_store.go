package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
)

const (
	pgLockNotAvailable = "55P03"
	pgDeadlockDetected = "40P01"
	pgQueryCanceled    = "57014"
)

type GormStore struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewGormStore(db *gorm.DB, lockTimeout time.Duration) *GormStore {
	return &GormStore{db: db, lockTimeout: lockTimeout}
}

func (s *GormStore) WithTrainerDay(ctx context.Context, trainerID uint, date time.Time, fn func(tx BookingTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.setLockTimeout(tx); err != nil {
			return err
		}
		// FOR UPDATE locks nothing when the trainer has no bookings that day
		// yet, so the (trainer, day) pair itself is locked first.
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", lockKey(trainerID, date)).Error; err != nil {
			return err
		}
		return fn(&gormTx{tx: tx})
	})
	return classify(err)
}

func (s *GormStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &b, nil
}

func (s *GormStore) UpdateBooking(ctx context.Context, id string, mutate func(b *models.Booking) (bool, error)) (*models.Booking, error) {
	var b models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.setLockTimeout(tx); err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, "id = ?", id).Error; err != nil {
			return err
		}
		changed, err := mutate(&b)
		if err != nil || !changed {
			return err
		}
		return tx.Save(&b).Error
	})
	if err != nil {
		return nil, classify(err)
	}
	return &b, nil
}

func (s *GormStore) ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Booking{})
	if f.TrainerID != 0 {
		query = query.Where("trainer_id = ?", f.TrainerID)
	}
	if f.ClientID != 0 {
		query = query.Where("client_id = ?", f.ClientID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	offset, limit := f.window()
	var bookings []models.Booking
	if err := query.Offset(offset).Limit(limit).
		Order("session_date DESC, start_time DESC").Find(&bookings).Error; err != nil {
		return nil, 0, classify(err)
	}
	return bookings, total, nil
}

func (s *GormStore) setLockTimeout(tx *gorm.DB) error {
	if s.lockTimeout <= 0 {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())).Error
}

type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) LockActiveBookings(ctx context.Context, trainerID uint, date time.Time, excludeID string) ([]models.Booking, error) {
	query := t.tx.WithContext(ctx).Model(&models.Booking{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("trainer_id = ? AND session_date = ? AND status IN ?", trainerID, models.DateOf(date), activeStatuses())
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var bookings []models.Booking
	if err := query.Order("start_time").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (t *gormTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	return t.tx.WithContext(ctx).Create(b).Error
}

func activeStatuses() []string {
	out := make([]string, 0, len(models.ActiveStatuses))
	for _, s := range models.ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}

// dayNumber counts calendar days since the Unix epoch.
func dayNumber(date time.Time) int32 {
	return int32(models.DateOf(date).Unix() / 86400)
}

// dayBits holds the day in the low bits of a lock key, enough for the next
// eleven thousand years.
const dayBits = 22

// lockKey packs (trainer, day) into the bigint advisory-lock key. Keys stay
// distinct for trainer ids below 2^41.
func lockKey(trainerID uint, date time.Time) int64 {
	return int64(trainerID)<<dayBits | int64(dayNumber(date))&(1<<dayBits-1)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgQueryCanceled:
			return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}

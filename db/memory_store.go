package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
)

// MemoryStore keeps bookings in process memory. Each (trainer, day) pair
// is guarded by a one-slot lease that is held for the whole transaction.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]models.Booking

	leaseMu     sync.Mutex
	leases      map[dayKey]*lease
	lockTimeout time.Duration
}

type dayKey struct {
	trainerID uint
	day       int32
}

type lease struct {
	sem  *semaphore.Weighted
	refs int
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		bookings:    make(map[string]models.Booking),
		leases:      make(map[dayKey]*lease),
		lockTimeout: lockTimeout,
	}
}

func (s *MemoryStore) WithTrainerDay(ctx context.Context, trainerID uint, date time.Time, fn func(tx BookingTx) error) error {
	key := dayKey{trainerID: trainerID, day: dayNumber(date)}
	l := s.acquireRef(key)
	defer s.releaseRef(key)

	waitCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: trainer %d on %s", ErrLockTimeout, trainerID, models.DateOf(date).Format(time.DateOnly))
	}
	defer l.sem.Release(1)

	tx := &memoryTx{store: s, trainerID: trainerID, date: models.DateOf(date)}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx.staged)
}

func (s *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(b), nil
}

func (s *MemoryStore) UpdateBooking(ctx context.Context, id string, mutate func(b *models.Booking) (bool, error)) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	b := clone(current)
	changed, err := mutate(b)
	if err != nil {
		return nil, err
	}
	if changed {
		s.bookings[id] = *clone(*b)
	}
	return b, nil
}

func (s *MemoryStore) ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, int64, error) {
	s.mu.RLock()
	var matched []models.Booking
	for _, b := range s.bookings {
		if f.TrainerID != 0 && b.TrainerID != f.TrainerID {
			continue
		}
		if f.ClientID != 0 && b.ClientID != f.ClientID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		matched = append(matched, *clone(b))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SessionDate.Equal(matched[j].SessionDate) {
			return matched[i].SessionDate.After(matched[j].SessionDate)
		}
		return matched[i].StartTime > matched[j].StartTime
	})

	total := int64(len(matched))
	offset, limit := f.window()
	if offset >= len(matched) {
		return []models.Booking{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (s *MemoryStore) acquireRef(key dayKey) *lease {
	s.leaseMu.Lock()
	defer s.leaseMu.Unlock()
	l, ok := s.leases[key]
	if !ok {
		l = &lease{sem: semaphore.NewWeighted(1)}
		s.leases[key] = l
	}
	l.refs++
	return l
}

func (s *MemoryStore) releaseRef(key dayKey) {
	s.leaseMu.Lock()
	defer s.leaseMu.Unlock()
	l := s.leases[key]
	l.refs--
	if l.refs == 0 {
		delete(s.leases, key)
	}
}

func (s *MemoryStore) commit(staged []models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range staged {
		if _, exists := s.bookings[b.ID]; exists {
			return fmt.Errorf("duplicate booking id %s", b.ID)
		}
	}
	for _, b := range staged {
		s.bookings[b.ID] = b
	}
	return nil
}

type memoryTx struct {
	store     *MemoryStore
	trainerID uint
	date      time.Time
	staged    []models.Booking
}

var errOutsideScope = errors.New("booking is outside the locked trainer day")

func (t *memoryTx) LockActiveBookings(ctx context.Context, trainerID uint, date time.Time, excludeID string) ([]models.Booking, error) {
	if trainerID != t.trainerID || !models.DateOf(date).Equal(t.date) {
		return nil, errOutsideScope
	}

	var out []models.Booking
	keep := func(b models.Booking) {
		if b.TrainerID == trainerID && b.SessionDate.Equal(t.date) && b.Status.IsActive() && b.ID != excludeID {
			out = append(out, *clone(b))
		}
	}

	t.store.mu.RLock()
	for _, b := range t.store.bookings {
		keep(b)
	}
	t.store.mu.RUnlock()
	for _, b := range t.staged {
		keep(b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (t *memoryTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	if b.TrainerID != t.trainerID || !models.DateOf(b.SessionDate).Equal(t.date) {
		return errOutsideScope
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = now
	}
	b.SessionDate = models.DateOf(b.SessionDate)
	t.staged = append(t.staged, *clone(*b))
	return nil
}

func clone(b models.Booking) *models.Booking {
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		b.CancelledAt = &at
	}
	return &b
}

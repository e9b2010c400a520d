package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/db"
)

const (
	trainerID      uint = 1
	otherTrainerID uint = 2
	hiddenTrainer  uint = 3
	clientID       uint = 10
	otherClientID  uint = 11
)

var sessionDay = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeDirectory struct {
	trainers map[uint]*models.TrainerProfile
}

func (d *fakeDirectory) Trainer(ctx context.Context, id uint) (*models.TrainerProfile, error) {
	t, ok := d.trainers[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
	panic bool
}

func (n *fakeNotifier) NotifyBookingCreated(ctx context.Context, b *models.Booking) (bool, bool, error) {
	n.mu.Lock()
	n.calls = append(n.calls, b.ID)
	n.mu.Unlock()
	if n.panic {
		panic("smtp exploded")
	}
	if n.err != nil {
		return false, false, n.err
	}
	return true, true, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *fakeEvents) PublishBookingEvent(ctx context.Context, event string, b *models.Booking) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	manager  *Manager
	store    *db.MemoryStore
	clock    *clock
	notifier *fakeNotifier
	events   *fakeEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := &fakeDirectory{trainers: map[uint]*models.TrainerProfile{
		trainerID:      {HourlyRate: decimal.RequireFromString("75.00"), Published: true},
		otherTrainerID: {HourlyRate: decimal.RequireFromString("60.00"), Published: true},
		hiddenTrainer:  {HourlyRate: decimal.RequireFromString("50.00"), Published: false},
	}}
	f := &fixture{
		store:    db.NewMemoryStore(5 * time.Second),
		clock:    &clock{now: time.Date(2024, 5, 29, 9, 0, 0, 0, time.UTC)},
		notifier: &fakeNotifier{},
		events:   &fakeEvents{},
	}
	f.manager = NewManager(f.store, dir,
		WithClock(f.clock.Now),
		WithNotifier(f.notifier),
		WithEventPublisher(f.events),
	)
	return f
}

func at(h, m int) models.ClockTime { return models.NewClockTime(h, m) }

func request(trainer uint, date time.Time, start, end models.ClockTime) CreateRequest {
	return CreateRequest{
		TrainerID:       trainer,
		ClientID:        clientID,
		SessionDate:     date,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: int(end - start),
		LocationAddress: "123 Gym St",
	}
}

func (f *fixture) create(t *testing.T, req CreateRequest) *models.Booking {
	t.Helper()
	b, err := f.manager.CreateBooking(context.Background(), req)
	require.NoError(t, err)
	return b
}

func TestOverlapsHalfOpenIntervals(t *testing.T) {
	existingStart, existingEnd := at(10, 0), at(11, 0)
	tests := []struct {
		name       string
		start, end models.ClockTime
		want       bool
	}{
		{"exact duplicate", at(10, 0), at(11, 0), true},
		{"starts inside", at(10, 30), at(11, 30), true},
		{"ends inside", at(9, 30), at(10, 30), true},
		{"contains existing", at(9, 0), at(12, 0), true},
		{"inside existing", at(10, 15), at(10, 45), true},
		{"adjacent after", at(11, 0), at(12, 0), false},
		{"adjacent before", at(9, 0), at(10, 0), false},
		{"disjoint", at(13, 0), at(14, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.Overlaps(tt.start, tt.end, existingStart, existingEnd))
			assert.Equal(t, tt.want, models.Overlaps(existingStart, existingEnd, tt.start, tt.end), "symmetric")
		})
	}
}

func TestFindConflict(t *testing.T) {
	f := newFixture(t)
	existing := f.create(t, request(trainerID, sessionDay, at(10, 0), at(11, 0)))
	ctx := context.Background()

	conflict, err := f.manager.FindConflict(ctx, ConflictQuery{TrainerID: trainerID, SessionDate: sessionDay, Start: at(10, 30), End: at(11, 30)})
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, existing.ID, conflict.ID)

	conflict, err = f.manager.FindConflict(ctx, ConflictQuery{TrainerID: trainerID, SessionDate: sessionDay, Start: at(11, 0), End: at(12, 0)})
	require.NoError(t, err)
	assert.Nil(t, conflict)

	conflict, err = f.manager.FindConflict(ctx, ConflictQuery{TrainerID: trainerID, SessionDate: sessionDay.AddDate(0, 0, 1), Start: at(10, 0), End: at(11, 0)})
	require.NoError(t, err)
	assert.Nil(t, conflict)

	conflict, err = f.manager.FindConflict(ctx, ConflictQuery{TrainerID: trainerID, SessionDate: sessionDay, Start: at(10, 0), End: at(11, 0), ExcludeBookingID: existing.ID})
	require.NoError(t, err)
	assert.Nil(t, conflict, "excluded booking must not conflict with itself")

	_, err = f.manager.FindConflict(ctx, ConflictQuery{TrainerID: trainerID, SessionDate: sessionDay, Start: at(11, 0), End: at(10, 0)})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.manager.FindConflict(ctx, ConflictQuery{TrainerID: 99, SessionDate: sessionDay, Start: at(10, 0), End: at(11, 0)})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCreateBookingScenario(t *testing.T) {
	f := newFixture(t)
	existing := f.create(t, request(trainerID, sessionDay, at(10, 0), at(11, 0)))
	_, err := f.manager.Confirm(context.Background(), existing.ID, Actor{Party: PartyTrainer, ID: trainerID})
	require.NoError(t, err)

	_, err = f.manager.CreateBooking(context.Background(), request(trainerID, sessionDay, at(10, 30), at(11, 30)))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, existing.ID, conflict.BookingID)
	assert.Equal(t, at(10, 0), conflict.Start)
	assert.Equal(t, at(11, 0), conflict.End)
	assert.Contains(t, conflict.Error(), "10:00 to 11:00")

	adjacent := f.create(t, request(trainerID, sessionDay, at(11, 0), at(12, 0)))
	assert.Equal(t, models.StatusPending, adjacent.Status)
	assert.Equal(t, models.PaymentUnpaid, adjacent.PaymentStatus)

	nextDay := f.create(t, request(trainerID, sessionDay.AddDate(0, 0, 1), at(10, 0), at(11, 0)))
	assert.Equal(t, models.StatusPending, nextDay.Status)

	_, total, err := f.store.ListBookings(context.Background(), db.BookingFilter{TrainerID: trainerID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestCancelledBookingNeverConflicts(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, request(trainerID, sessionDay, at(10, 0), at(11, 0)))
	_, err := f.manager.Cancel(context.Background(), first.ID, Actor{Party: PartyClient, ID: clientID}, "changed plans")
	require.NoError(t, err)

	second, err := f.manager.CreateBooking(context.Background(), request(trainerID, sessionDay, at(10, 0), at(11, 0)))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestOtherTrainerSameSlotDoesNotConflict(t *testing.T) {
	f := newFixture(t)
	f.create(t, request(trainerID, sessionDay, at(10, 0), at(11, 0)))
	f.create(t, request(otherTrainerID, sessionDay, at(10, 0), at(11, 0)))
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	past := sessionDay.AddDate(0, -1, 0)

	mismatch := request(trainerID, sessionDay, at(10, 0), at(11, 0))
	mismatch.DurationMinutes = 45
	tooShort := request(trainerID, sessionDay, at(10, 0), at(10, 10))
	noClient := request(trainerID, sessionDay, at(10, 0), at(11, 0))
	noClient.ClientID = 0

	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"past date", request(trainerID, past, at(10, 0), at(11, 0)), "session_date"},
		{"end before start", CreateRequest{TrainerID: trainerID, ClientID: clientID, SessionDate: sessionDay, StartTime: at(11, 0), EndTime: at(10, 0), DurationMinutes: 60}, "end_time"},
		{"equal times", CreateRequest{TrainerID: trainerID, ClientID: clientID, SessionDate: sessionDay, StartTime: at(10, 0), EndTime: at(10, 0), DurationMinutes: 15}, "end_time"},
		{"duration mismatch", mismatch, "duration_minutes"},
		{"too short", tooShort, "DurationMinutes"},
		{"missing client", noClient, "ClientID"},
		{"unpublished trainer", request(hiddenTrainer, sessionDay, at(10, 0), at(11, 0)), "trainer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.CreateBooking(context.Background(), tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	_, err := f.manager.CreateBooking(context.Background(), request(99, sessionDay, at(10, 0), at(11, 0)))
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, total, err := f.store.ListBookings(context.Background(), db.BookingFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreateBookingAllowsOneMinuteDurationTolerance(t *testing.T) {
	f := newFixture(t)
	req := request(trainerID, sessionDay, at(10, 0), at(11, 0))
	req.DurationMinutes = 61
	b := f.create(t, req)
	assert.Equal(t, 61, b.DurationMinutes)
}

func TestCreateBookingAllowsToday(t *testing.T) {
	f := newFixture(t)
	today := models.DateOf(f.clock.Now())
	f.create(t, request(trainerID, today, at(18, 0), at(19, 0)))
}

func TestCreateBookingEndingAtMidnight(t *testing.T) {
	f := newFixture(t)
	late := f.create(t, request(trainerID, sessionDay, at(23, 0), models.EndOfDay))
	assert.Equal(t, "24:00", late.EndTime.String())
	assert.Equal(t, 60, late.DurationMinutes)

	f.create(t, request(trainerID, sessionDay, at(22, 0), at(23, 0)))

	_, err := f.manager.CreateBooking(context.Background(), request(trainerID, sessionDay, at(23, 30), models.EndOfDay))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, late.ID, conflict.BookingID)

	_, err = f.manager.CreateBooking(context.Background(), request(trainerID, sessionDay, at(23, 30), models.EndOfDay+1))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTotalPrice(t *testing.T) {
	f := newFixture(t)

	hour := f.create(t, request(trainerID, sessionDay, at(8, 0), at(9, 0)))
	assert.True(t, decimal.RequireFromString("75.00").Equal(hour.TotalPrice), hour.TotalPrice.String())
	assert.True(t, decimal.RequireFromString("75.00").Equal(hour.HourlyRate))

	half := f.create(t, request(trainerID, sessionDay, at(9, 0), at(9, 30)))
	assert.True(t, decimal.RequireFromString("37.50").Equal(half.TotalPrice), half.TotalPrice.String())

	preset := decimal.RequireFromString("10.00")
	req := request(trainerID, sessionDay, at(12, 0), at(13, 0))
	req.TotalPrice = &preset
	fixed := f.create(t, req)
	assert.True(t, preset.Equal(fixed.TotalPrice), "an explicit price is kept")

	updated, err := f.manager.UpdateNotes(context.Background(), half.ID, Actor{Party: PartyClient, ID: clientID}, "bring gloves")
	require.NoError(t, err)
	assert.True(t, half.TotalPrice.Equal(updated.TotalPrice), "price is not recomputed on save")
}

func TestConcurrentOverlappingCreatesHaveExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	const attempts = 12

	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, conflicts int
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := request(trainerID, sessionDay, at(10, i%3*10), at(11, i%3*10))
			req.ClientID = clientID + uint(i)
			<-start
			_, err := f.manager.CreateBooking(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			var conflict *ConflictError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &conflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, conflicts)

	_, total, err := f.store.ListBookings(context.Background(), db.BookingFilter{TrainerID: trainerID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestConcurrentCreatesForDifferentDaysAllSucceed(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.manager.CreateBooking(context.Background(), request(trainerID, sessionDay.AddDate(0, 0, i), at(10, 0), at(11, 0)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestNotificationFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	b := f.create(t, request(trainerID, sessionDay, at(10, 0), at(11, 0)))
	assert.Equal(t, []string{b.ID}, f.notifier.calls)

	f.notifier.err = nil
	f.notifier.panic = true
	f.create(t, request(trainerID, sessionDay, at(12, 0), at(13, 0)))
}

func TestNotifierNotCalledOnConflict(t *testing.T) {
	f := newFixture(t)
	f.create(t, request(trainerID, sessionDay, at(10, 0), at(11, 0)))
	_, err := f.manager.CreateBooking(context.Background(), request(trainerID, sessionDay, at(10, 0), at(11, 0)))
	require.Error(t, err)
	assert.Len(t, f.notifier.calls, 1)
	assert.Equal(t, []string{EventCreated}, f.events.events)
}

package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/cmd/utils"
	"github.com/KAsare1/trainer-booking-server/db"
	"github.com/KAsare1/trainer-booking-server/service/booking"
	"github.com/KAsare1/trainer-booking-server/service/ws"
)

const (
	clientUserID  uint = 10
	trainerUserID uint = 20
	profileID     uint = 2
	validToken         = "ExponentPushToken[abc123]"
)

type fakeRecipients struct {
	users    map[uint]*models.User
	profiles map[uint]*models.TrainerProfile
	tokens   map[uint][]string
	removed  []string
	history  []models.NotificationHistory
}

func newRecipients() *fakeRecipients {
	client := &models.User{Model: gorm.Model{ID: clientUserID}, FirstName: "Ama", LastName: "Owusu", Email: "ama@example.com"}
	trainer := &models.User{Model: gorm.Model{ID: trainerUserID}, FirstName: "Kofi", LastName: "Mensah", Email: "kofi@example.com"}
	return &fakeRecipients{
		users: map[uint]*models.User{clientUserID: client, trainerUserID: trainer},
		profiles: map[uint]*models.TrainerProfile{
			profileID: {Model: gorm.Model{ID: profileID}, UserID: trainerUserID, User: trainer},
		},
		tokens: map[uint][]string{},
	}
}

func (f *fakeRecipients) User(ctx context.Context, id uint) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func (f *fakeRecipients) TrainerProfile(ctx context.Context, id uint) (*models.TrainerProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (f *fakeRecipients) DeviceTokens(ctx context.Context, userID uint) ([]string, error) {
	return f.tokens[userID], nil
}

func (f *fakeRecipients) RemoveTokens(ctx context.Context, tokens []string) error {
	f.removed = append(f.removed, tokens...)
	return nil
}

func (f *fakeRecipients) RecordHistory(ctx context.Context, entries []models.NotificationHistory) error {
	f.history = append(f.history, entries...)
	return nil
}

type sentEmail struct {
	to, subject, body string
}

type fakeEmail struct {
	sent []sentEmail
	fail map[string]bool
}

func (f *fakeEmail) SendEmail(to, subject, body string) error {
	if f.fail[to] {
		return errors.New("smtp: connection refused")
	}
	f.sent = append(f.sent, sentEmail{to, subject, body})
	return nil
}

type fakePush struct {
	calls   [][]string
	invalid []string
}

func (f *fakePush) Push(tokens []string, title, body string, data map[string]string) ([]string, error) {
	f.calls = append(f.calls, tokens)
	return f.invalid, nil
}

type fakeLive struct {
	mu        sync.Mutex
	connected map[uint]bool
	got       map[uint][]ws.Message
}

func (f *fakeLive) SendToUser(userID uint, msg ws.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected[userID] {
		return false
	}
	if f.got == nil {
		f.got = map[uint][]ws.Message{}
	}
	f.got[userID] = append(f.got[userID], msg)
	return true
}

func sampleBooking() *models.Booking {
	return &models.Booking{
		ID:              "b-1",
		TrainerID:       profileID,
		ClientID:        clientUserID,
		SessionDate:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		StartTime:       models.NewClockTime(10, 0),
		EndTime:         models.NewClockTime(11, 0),
		DurationMinutes: 60,
		HourlyRate:      decimal.NewFromInt(80),
		TotalPrice:      decimal.RequireFromString("80.00"),
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentUnpaid,
		ClientNotes:     "Knee injury last year",
	}
}

func TestNotifyBookingCreatedEmailsBothParties(t *testing.T) {
	recipients := newRecipients()
	email := &fakeEmail{}
	d := NewDispatcher(recipients, Site{Name: "FitBook", URL: "https://fitbook.example"}, WithEmail(email))

	clientOK, trainerOK, err := d.NotifyBookingCreated(context.Background(), sampleBooking())
	require.NoError(t, err)
	assert.True(t, clientOK)
	assert.True(t, trainerOK)

	require.Len(t, email.sent, 2)
	assert.Equal(t, "ama@example.com", email.sent[0].to)
	assert.Equal(t, "Booking Confirmation - Jun 01, 2024", email.sent[0].subject)
	assert.Contains(t, email.sent[0].body, "Kofi Mensah")
	assert.Contains(t, email.sent[0].body, "Time: 10:00 - 11:00 (60 minutes)")
	assert.Contains(t, email.sent[0].body, "Total: $80.00")

	assert.Equal(t, "kofi@example.com", email.sent[1].to)
	assert.Equal(t, "New Booking Request - Jun 01, 2024", email.sent[1].subject)
	assert.Contains(t, email.sent[1].body, "Ama Owusu has requested a session")
	assert.Contains(t, email.sent[1].body, "Knee injury last year")

	require.Len(t, recipients.history, 2)
	for _, h := range recipients.history {
		assert.Equal(t, models.ChannelEmail, h.Channel)
		assert.Equal(t, models.DeliverySent, h.Status)
		assert.Equal(t, "b-1", h.BookingID)
	}
}

func TestNotifyBookingCreatedReportsPerParty(t *testing.T) {
	recipients := newRecipients()
	email := &fakeEmail{fail: map[string]bool{"kofi@example.com": true}}
	d := NewDispatcher(recipients, Site{}, WithEmail(email))

	clientOK, trainerOK, err := d.NotifyBookingCreated(context.Background(), sampleBooking())
	require.NoError(t, err)
	assert.True(t, clientOK)
	assert.False(t, trainerOK)

	require.Len(t, recipients.history, 2)
	failed := recipients.history[1]
	assert.Equal(t, trainerUserID, failed.UserID)
	assert.Equal(t, models.DeliveryFailed, failed.Status)
	assert.Contains(t, failed.Error, "connection refused")
}

func TestNotifyBookingCreatedWithoutChannels(t *testing.T) {
	d := NewDispatcher(newRecipients(), Site{})

	clientOK, trainerOK, err := d.NotifyBookingCreated(context.Background(), sampleBooking())
	require.NoError(t, err)
	assert.False(t, clientOK)
	assert.False(t, trainerOK)
}

func TestNotifyBookingCreatedUnknownRecipient(t *testing.T) {
	b := sampleBooking()
	b.TrainerID = 99
	d := NewDispatcher(newRecipients(), Site{}, WithEmail(&fakeEmail{}))

	_, _, err := d.NotifyBookingCreated(context.Background(), b)
	require.Error(t, err)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestNotifyBookingCreatedPushAndLive(t *testing.T) {
	recipients := newRecipients()
	recipients.tokens[trainerUserID] = []string{validToken, "stale"}
	push := &fakePush{invalid: []string{"stale"}}
	live := &fakeLive{connected: map[uint]bool{clientUserID: true}}
	d := NewDispatcher(recipients, Site{}, WithPush(push), WithLive(live))

	clientOK, trainerOK, err := d.NotifyBookingCreated(context.Background(), sampleBooking())
	require.NoError(t, err)
	assert.True(t, clientOK, "delivered over websocket")
	assert.True(t, trainerOK, "delivered over push")

	require.Len(t, push.calls, 1)
	assert.Equal(t, []string{validToken, "stale"}, push.calls[0])
	assert.Equal(t, []string{"stale"}, recipients.removed)

	require.Len(t, live.got[clientUserID], 1)
	msg := live.got[clientUserID][0]
	assert.Equal(t, booking.EventCreated, msg.Type)
	event, ok := msg.Data.(booking.Event)
	require.True(t, ok)
	assert.Equal(t, "b-1", event.BookingID)
	assert.Equal(t, "2024-06-01", event.SessionDate)
}

func TestPublishBookingEventReachesBothParties(t *testing.T) {
	live := &fakeLive{connected: map[uint]bool{clientUserID: true, trainerUserID: true}}
	d := NewDispatcher(newRecipients(), Site{}, WithLive(live))

	b := sampleBooking()
	b.Status = models.StatusConfirmed
	require.NoError(t, d.PublishBookingEvent(context.Background(), booking.EventConfirmed, b))

	for _, id := range []uint{clientUserID, trainerUserID} {
		require.Len(t, live.got[id], 1)
		assert.Equal(t, booking.EventConfirmed, live.got[id][0].Type)
	}

	require.NoError(t, d.PublishBookingEvent(context.Background(), booking.EventCreated, b))
	assert.Len(t, live.got[clientUserID], 1, "creation is delivered by NotifyBookingCreated")
}

type memoryDevices struct {
	devices []models.Device
	history []models.NotificationHistory
	nextID  uint
}

func (m *memoryDevices) SaveDevice(ctx context.Context, d *models.Device) error {
	for i := range m.devices {
		if m.devices[i].Token == d.Token && m.devices[i].UserID == d.UserID {
			m.devices[i].DeviceType = d.DeviceType
			m.devices[i].DeviceName = d.DeviceName
			*d = m.devices[i]
			return nil
		}
	}
	m.nextID++
	d.ID = m.nextID
	m.devices = append(m.devices, *d)
	return nil
}

func (m *memoryDevices) ListDevices(ctx context.Context, userID uint) ([]models.Device, error) {
	var out []models.Device
	for _, d := range m.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memoryDevices) DeleteDevice(ctx context.Context, userID, id uint) (bool, error) {
	for i, d := range m.devices {
		if d.ID == id && d.UserID == userID {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryDevices) History(ctx context.Context, userID uint, page, pageSize int) ([]models.NotificationHistory, int64, error) {
	var out []models.NotificationHistory
	for _, h := range m.history {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, int64(len(out)), nil
}

func serve(t *testing.T, router *mux.Router, auth *utils.Authenticator, method, path string, userID uint, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	token, err := auth.IssueToken(userID, models.RoleClient, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDeviceRoutes(t *testing.T) {
	store := &memoryDevices{}
	auth := utils.NewAuthenticator("test-secret")
	router := mux.NewRouter()
	NewNotificationHandler(store, auth).RegisterRoutes(router)

	rec := serve(t, router, auth, http.MethodPost, "/devices", clientUserID, map[string]string{"token": "not-a-token"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, router, auth, http.MethodPost, "/devices", clientUserID, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, router, auth, http.MethodPost, "/devices", clientUserID, map[string]string{"token": validToken, "deviceType": "ios"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = serve(t, router, auth, http.MethodPost, "/devices", clientUserID, map[string]string{"token": validToken, "deviceType": "android"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.devices, 1, "re-registering refreshes the device")
	assert.Equal(t, clientUserID, store.devices[0].UserID)
	assert.Equal(t, "android", store.devices[0].DeviceType)

	rec = serve(t, router, auth, http.MethodGet, "/devices", trainerUserID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = serve(t, router, auth, http.MethodDelete, "/devices/1", trainerUserID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "devices belong to their owner")

	rec = serve(t, router, auth, http.MethodDelete, "/devices/1", clientUserID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.devices)
}

func TestHistoryRoute(t *testing.T) {
	store := &memoryDevices{history: []models.NotificationHistory{
		{UserID: clientUserID, BookingID: "b-1", Channel: models.ChannelEmail, Status: models.DeliverySent},
		{UserID: trainerUserID, BookingID: "b-1", Channel: models.ChannelEmail, Status: models.DeliverySent},
	}}
	auth := utils.NewAuthenticator("test-secret")
	router := mux.NewRouter()
	NewNotificationHandler(store, auth).RegisterRoutes(router)

	rec := serve(t, router, auth, http.MethodGet, "/notifications/history?page_size=500", clientUserID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Notifications []models.NotificationHistory `json:"notifications"`
		Total         int64                        `json:"total"`
		PageSize      int                          `json:"page_size"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.EqualValues(t, 1, out.Total)
	assert.Equal(t, maxHistoryPageSize, out.PageSize)
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, "b-1", out.Notifications[0].BookingID)
}

package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
)

func TestSummarize(t *testing.T) {
	stats := Summarize([]StatusRow{
		{Status: models.StatusPending, Count: 2, PaidTotal: decimal.Zero},
		{Status: models.StatusConfirmed, Count: 3, PaidTotal: decimal.RequireFromString("150.50")},
		{Status: models.StatusCompleted, Count: 4, PaidTotal: decimal.RequireFromString("300.25")},
		{Status: models.StatusCancelledByClient, Count: 1, PaidTotal: decimal.Zero},
	})

	assert.EqualValues(t, 10, stats.TotalBookings)
	assert.EqualValues(t, 5, stats.Active)
	assert.EqualValues(t, 4, stats.ByStatus["completed"])
	assert.Equal(t, "450.75", stats.PaidTotal.StringFixed(2))

	empty := Summarize(nil)
	assert.Zero(t, empty.TotalBookings)
	assert.NotNil(t, empty.ByStatus)
	assert.True(t, empty.PaidTotal.IsZero())
}

type fakeStats struct {
	scopes []Scope
	from   time.Time
}

func (f *fakeStats) StatusSummary(ctx context.Context, scope Scope) ([]StatusRow, error) {
	f.scopes = append(f.scopes, scope)
	return []StatusRow{{Status: models.StatusConfirmed, Count: 1, PaidTotal: decimal.RequireFromString("80")}}, nil
}

func (f *fakeStats) UpcomingCount(ctx context.Context, scope Scope, from time.Time) (int64, error) {
	f.from = from
	return 1, nil
}

type profiles struct{}

func (profiles) ByUserID(ctx context.Context, userID uint) (*models.TrainerProfile, error) {
	if userID != 100 {
		return nil, db.ErrNotFound
	}
	return &models.TrainerProfile{Model: gorm.Model{ID: 7}, UserID: userID}, nil
}

func TestGetDashboardStatsScopesToCaller(t *testing.T) {
	stats := &fakeStats{}
	auth := utils.NewAuthenticator("test-secret")
	handler := NewDashboardHandler(stats, profiles{}, auth, time.UTC)
	handler.now = func() time.Time { return time.Date(2024, 6, 1, 22, 30, 0, 0, time.UTC) }
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	get := func(userID uint, role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/dashboard/stats", nil)
		token, err := auth.IssueToken(userID, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := get(10, models.RoleClient)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.EqualValues(t, 1, out["upcoming"])
	assert.EqualValues(t, 1, out["active"])

	require.Equal(t, http.StatusOK, get(100, models.RoleTrainer).Code)
	require.Equal(t, http.StatusOK, get(1, models.RoleAdmin).Code)
	assert.Equal(t, http.StatusForbidden, get(101, models.RoleTrainer).Code, "trainer without a profile")

	assert.Equal(t, []Scope{{ClientID: 10}, {TrainerID: 7}, {}}, stats.scopes)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), stats.from)
}

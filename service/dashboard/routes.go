package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/cmd/utils"
	"github.com/KAsare1/trainer-booking-server/service/booking"
)

// Scope limits the summary to one trainer or one client. The zero value
// covers every booking.
type Scope struct {
	TrainerID uint
	ClientID  uint
}

type StatusRow struct {
	Status    models.BookingStatus
	Count     int64
	PaidTotal decimal.Decimal
}

type Stats interface {
	StatusSummary(ctx context.Context, scope Scope) ([]StatusRow, error)
	UpcomingCount(ctx context.Context, scope Scope, from time.Time) (int64, error)
}

type DashboardStats struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
	Active        int64            `json:"active"`
	Upcoming      int64            `json:"upcoming"`
	PaidTotal     decimal.Decimal  `json:"paid_total"`
}

type DashboardHandler struct {
	stats    Stats
	profiles booking.ProfileLookup
	auth     *utils.Authenticator
	loc      *time.Location
	now      func() time.Time
}

func NewDashboardHandler(stats Stats, profiles booking.ProfileLookup, auth *utils.Authenticator, loc *time.Location) *DashboardHandler {
	return &DashboardHandler{stats: stats, profiles: profiles, auth: auth, loc: loc, now: time.Now}
}

func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	dashboardRouter := router.PathPrefix("/dashboard").Subrouter()
	dashboardRouter.HandleFunc("/stats", h.auth.AuthMiddleware(h.GetDashboardStats)).Methods("GET")
}

func (h *DashboardHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	actor, err := booking.ResolveActor(r.Context(), h.profiles)
	if err != nil {
		booking.WriteError(w, err)
		return
	}

	var scope Scope
	switch actor.Party {
	case booking.PartyClient:
		scope.ClientID = actor.ID
	case booking.PartyTrainer:
		scope.TrainerID = actor.ID
	}

	rows, err := h.stats.StatusSummary(r.Context(), scope)
	if err != nil {
		booking.WriteError(w, err)
		return
	}
	stats := Summarize(rows)

	stats.Upcoming, err = h.stats.UpcomingCount(r.Context(), scope, models.DateOf(h.now().In(h.loc)))
	if err != nil {
		booking.WriteError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, stats)
}

// Summarize folds per-status rows into the dashboard totals.
func Summarize(rows []StatusRow) DashboardStats {
	stats := DashboardStats{ByStatus: make(map[string]int64), PaidTotal: decimal.Zero}
	for _, row := range rows {
		stats.ByStatus[string(row.Status)] += row.Count
		stats.TotalBookings += row.Count
		if row.Status.IsActive() {
			stats.Active += row.Count
		}
		stats.PaidTotal = stats.PaidTotal.Add(row.PaidTotal)
	}
	stats.PaidTotal = stats.PaidTotal.RoundBank(2)
	return stats
}

type GormStats struct {
	db *gorm.DB
}

func NewGormStats(db *gorm.DB) *GormStats {
	return &GormStats{db: db}
}

func (s *GormStats) scoped(ctx context.Context, scope Scope) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Booking{})
	if scope.TrainerID != 0 {
		q = q.Where("trainer_id = ?", scope.TrainerID)
	}
	if scope.ClientID != 0 {
		q = q.Where("client_id = ?", scope.ClientID)
	}
	return q
}

func (s *GormStats) StatusSummary(ctx context.Context, scope Scope) ([]StatusRow, error) {
	var rows []StatusRow
	err := s.scoped(ctx, scope).
		Select("status, COUNT(*) AS count, COALESCE(SUM(CASE WHEN payment_status = ? THEN total_price END), 0) AS paid_total", string(models.PaymentPaid)).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summarize bookings: %w", err)
	}
	return rows, nil
}

func (s *GormStats) UpcomingCount(ctx context.Context, scope Scope, from time.Time) (int64, error) {
	var count int64
	err := s.scoped(ctx, scope).
		Where("status IN ? AND session_date >= ?", []string{string(models.StatusPending), string(models.StatusConfirmed)}, from).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count upcoming bookings: %w", err)
	}
	return count, nil
}

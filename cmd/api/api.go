package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/KAsare1/trainer-booking-server/cmd/utils"
	"github.com/KAsare1/trainer-booking-server/config"
	"github.com/KAsare1/trainer-booking-server/db"
	"github.com/KAsare1/trainer-booking-server/pkg/mq"
	"github.com/KAsare1/trainer-booking-server/service/booking"
	"github.com/KAsare1/trainer-booking-server/service/dashboard"
	notification "github.com/KAsare1/trainer-booking-server/service/notifications"
	"github.com/KAsare1/trainer-booking-server/service/payments"
	"github.com/KAsare1/trainer-booking-server/service/review"
	"github.com/KAsare1/trainer-booking-server/service/trainer"
	"github.com/KAsare1/trainer-booking-server/service/ws"
)

const shutdownTimeout = 15 * time.Second

type APIServer struct {
	cfg config.Config
	db  *gorm.DB
}

func NewAPIServer(cfg config.Config, db *gorm.DB) *APIServer {
	return &APIServer{cfg: cfg, db: db}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}

	auth := utils.NewAuthenticator(s.cfg.SecretKey)
	limiter := utils.NewRateLimiter(s.cfg.RateLimitPerMinute, s.cfg.RateLimitPerMinute/3+1)
	hub := ws.NewHub()
	directory := trainer.NewDirectory(s.db)
	notifyStore := notification.NewGormStore(s.db)

	dispatcherOpts := []notification.Option{
		notification.WithPush(notification.NewExpoSender()),
		notification.WithLive(hub),
	}
	if s.cfg.SMTPHost != "" {
		dispatcherOpts = append(dispatcherOpts, notification.WithEmail(
			notification.NewSMTPSender(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)))
	} else {
		log.Warn().Msg("SMTP_HOST not set, booking emails disabled")
	}
	dispatcher := notification.NewDispatcher(notifyStore,
		notification.Site{Name: s.cfg.SiteName, URL: s.cfg.SiteURL}, dispatcherOpts...)

	managerOpts := []booking.Option{
		booking.WithLocation(loc),
		booking.WithNotifier(dispatcher),
		booking.WithEventPublisher(dispatcher),
	}
	if s.cfg.RabbitURL != "" {
		publisher, err := mq.NewPublisher(s.cfg.RabbitURL, s.cfg.BookingExchange)
		if err != nil {
			return fmt.Errorf("connect booking event broker: %w", err)
		}
		defer publisher.Close()
		managerOpts = append(managerOpts, booking.WithEventPublisher(booking.NewBrokerPublisher(publisher)))
		log.Info().Str("exchange", s.cfg.BookingExchange).Msg("publishing booking events to rabbitmq")
	}
	manager := booking.NewManager(db.NewGormStore(s.db, s.cfg.LockTimeout), directory, managerOpts...)

	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()
	subrouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	// Routes nested under /bookings/{id} go first so the bookings subrouter
	// does not shadow them.
	reviewHandler := review.NewReviewHandler(review.NewService(manager, review.NewGormStore(s.db), directory), directory, auth)
	reviewHandler.RegisterRoutes(subrouter)

	paymentHandler := payments.NewPaymentHandler(manager, notifyStore, payments.NewPaystack("", s.cfg.PaystackSecretKey), directory, auth)
	paymentHandler.RegisterRoutes(subrouter)

	bookingHandler := booking.NewBookingHandler(manager, directory, auth, limiter)
	bookingHandler.RegisterRoutes(subrouter)

	trainerHandler := trainer.NewTrainerHandler(directory, auth)
	trainerHandler.RegisterRoutes(subrouter)

	dashboardHandler := dashboard.NewDashboardHandler(dashboard.NewGormStats(s.db), directory, auth, loc)
	dashboardHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewNotificationHandler(notifyStore, auth)
	notificationHandler.RegisterRoutes(subrouter)

	wsHandler := ws.NewWSHandler(hub, auth)
	wsHandler.RegisterRoutes(router)

	var handler http.Handler = router
	handler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(handler)
	handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(s.cfg.IsDevelopment()))(handler)
	handler = handlers.CombinedLoggingHandler(utils.LogWriter(), handler)

	server := &http.Server{
		Addr:              ":" + s.cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go s.cleanupLimiter(ctx, limiter)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *APIServer) cleanupLimiter(ctx context.Context, limiter *utils.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup(3 * time.Minute)
		}
	}
}

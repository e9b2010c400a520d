package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/cmd/utils"
	"github.com/KAsare1/trainer-booking-server/db"
)

// ProfileLookup maps a trainer's user account to their profile.
type ProfileLookup interface {
	ByUserID(ctx context.Context, userID uint) (*models.TrainerProfile, error)
}

type BookingHandler struct {
	manager  *Manager
	profiles ProfileLookup
	auth     *utils.Authenticator
	limiter  *utils.RateLimiter
	validate *validator.Validate
}

func NewBookingHandler(manager *Manager, profiles ProfileLookup, auth *utils.Authenticator, limiter *utils.RateLimiter) *BookingHandler {
	return &BookingHandler{
		manager:  manager,
		profiles: profiles,
		auth:     auth,
		limiter:  limiter,
		validate: utils.NewValidator(),
	}
}

func (h *BookingHandler) RegisterRoutes(router *mux.Router) {
	bookingRouter := router.PathPrefix("/bookings").Subrouter()

	bookingRouter.HandleFunc("", h.auth.AuthMiddleware(h.limiter.Limit(h.CreateBooking))).Methods("POST")
	bookingRouter.HandleFunc("", h.auth.AuthMiddleware(h.ListBookings)).Methods("GET")
	bookingRouter.HandleFunc("/conflicts", h.auth.AuthMiddleware(h.CheckConflict)).Methods("GET")
	bookingRouter.HandleFunc("/{id}", h.auth.AuthMiddleware(h.GetBooking)).Methods("GET")
	bookingRouter.HandleFunc("/{id}", h.auth.AuthMiddleware(h.UpdateBooking)).Methods("PATCH")
	bookingRouter.HandleFunc("/{id}", h.auth.AuthMiddleware(h.CancelBooking)).Methods("DELETE")
}

// ResolveActor turns the authenticated user into the capability the
// lifecycle operations check against.
func ResolveActor(ctx context.Context, profiles ProfileLookup) (Actor, error) {
	userID, err := utils.GetUserIDFromContext(ctx)
	if err != nil {
		return Actor{}, &PermissionError{Message: "Authentication required"}
	}
	role, err := utils.GetRoleFromContext(ctx)
	if err != nil {
		return Actor{}, &PermissionError{Message: "Authentication required"}
	}

	switch role {
	case models.RoleClient:
		return Actor{Party: PartyClient, ID: userID}, nil
	case models.RoleTrainer:
		profile, err := profiles.ByUserID(ctx, userID)
		if errors.Is(err, db.ErrNotFound) {
			return Actor{}, &PermissionError{Message: "Trainer profile not found"}
		}
		if err != nil {
			return Actor{}, err
		}
		return Actor{Party: PartyTrainer, ID: profile.ID}, nil
	case models.RoleAdmin:
		return Actor{Party: PartyAdmin, ID: userID}, nil
	}
	return Actor{}, &PermissionError{Message: "Invalid user role"}
}

type createBookingRequest struct {
	TrainerID       uint   `json:"trainer_id" validate:"required"`
	SessionDate     string `json:"session_date" validate:"required,datetime=2006-01-02"`
	StartTime       string `json:"start_time" validate:"required,timeformat"`
	EndTime         string `json:"end_time" validate:"required,timeformat"`
	DurationMinutes int    `json:"duration_minutes" validate:"required"`
	LocationAddress string `json:"location_address" validate:"max=255"`
	Notes           string `json:"notes" validate:"max=2000"`
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, err := ResolveActor(r.Context(), h.profiles)
	if err != nil {
		WriteError(w, err)
		return
	}
	if actor.Party != PartyClient {
		WriteError(w, &PermissionError{Message: "Only clients can create bookings"})
		return
	}

	var body createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		field, message := utils.TranslateValidationError(err)
		utils.RespondWithFieldError(w, http.StatusBadRequest, field, message)
		return
	}

	// Formats were checked by the validator above.
	date, _ := time.Parse(time.DateOnly, body.SessionDate)
	start, _ := models.ParseClockTime(body.StartTime)
	end, _ := models.ParseClockTime(body.EndTime)

	b, err := h.manager.CreateBooking(r.Context(), CreateRequest{
		TrainerID:       body.TrainerID,
		ClientID:        actor.ID,
		SessionDate:     date,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: body.DurationMinutes,
		LocationAddress: body.LocationAddress,
		Notes:           body.Notes,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Booking created successfully",
		"booking": h.manager.View(b),
	})
}

func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor, err := ResolveActor(r.Context(), h.profiles)
	if err != nil {
		WriteError(w, err)
		return
	}

	page, pageSize := utils.ParsePagination(r, DefaultPageSize, MaxPageSize)
	status := models.BookingStatus(r.URL.Query().Get("status"))

	bookings, total, err := h.manager.List(r.Context(), actor, status, page, pageSize)
	if err != nil {
		WriteError(w, err)
		return
	}

	views := make([]View, 0, len(bookings))
	for i := range bookings {
		views = append(views, h.manager.View(&bookings[i]))
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.Paginated("bookings", views, total, page, pageSize))
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor, err := ResolveActor(r.Context(), h.profiles)
	if err != nil {
		WriteError(w, err)
		return
	}

	b, err := h.manager.Get(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		WriteError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, h.manager.View(b))
}

type updateBookingRequest struct {
	Action string  `json:"action" validate:"omitempty,oneof=confirm complete no_show"`
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateBooking runs a lifecycle action, or edits the caller's notes when no
// action is given.
func (h *BookingHandler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	actor, err := ResolveActor(r.Context(), h.profiles)
	if err != nil {
		WriteError(w, err)
		return
	}

	var body updateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		field, message := utils.TranslateValidationError(err)
		utils.RespondWithFieldError(w, http.StatusBadRequest, field, message)
		return
	}

	id := mux.Vars(r)["id"]
	var b *models.Booking
	switch {
	case body.Action == "confirm":
		b, err = h.manager.Confirm(r.Context(), id, actor)
	case body.Action == "complete":
		b, err = h.manager.Complete(r.Context(), id, actor)
	case body.Action == "no_show":
		b, err = h.manager.MarkNoShow(r.Context(), id, actor)
	case body.Notes != nil:
		b, err = h.manager.UpdateNotes(r.Context(), id, actor, *body.Notes)
	default:
		utils.RespondWithError(w, http.StatusBadRequest, "Nothing to update")
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, h.manager.View(b))
}

func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, err := ResolveActor(r.Context(), h.profiles)
	if err != nil {
		WriteError(w, err)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	b, err := h.manager.Cancel(r.Context(), mux.Vars(r)["id"], actor, body.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Booking cancelled successfully",
		"booking": h.manager.View(b),
	})
}

// CheckConflict reports whether a trainer's time range is still free.
func (h *BookingHandler) CheckConflict(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	trainerID, err := strconv.ParseUint(query.Get("trainer_id"), 10, 64)
	if err != nil {
		utils.RespondWithFieldError(w, http.StatusBadRequest, "trainer_id", "Invalid trainer ID")
		return
	}
	date, err := time.Parse(time.DateOnly, query.Get("date"))
	if err != nil {
		utils.RespondWithFieldError(w, http.StatusBadRequest, "date", "Invalid date format. Use YYYY-MM-DD")
		return
	}
	start, err := models.ParseClockTime(query.Get("start_time"))
	if err != nil {
		utils.RespondWithFieldError(w, http.StatusBadRequest, "start_time", "Invalid start time. Use HH:MM")
		return
	}
	end, err := models.ParseClockTime(query.Get("end_time"))
	if err != nil {
		utils.RespondWithFieldError(w, http.StatusBadRequest, "end_time", "Invalid end time. Use HH:MM")
		return
	}

	conflict, err := h.manager.FindConflict(r.Context(), ConflictQuery{
		TrainerID:        uint(trainerID),
		SessionDate:      date,
		Start:            start,
		End:              end,
		ExcludeBookingID: query.Get("exclude"),
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := map[string]interface{}{"available": conflict == nil}
	if conflict != nil {
		resp["conflict"] = map[string]interface{}{
			"start_time": conflict.StartTime,
			"end_time":   conflict.EndTime,
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, resp)
}

// WriteError maps booking errors onto HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	var (
		validation *ValidationError
		conflict   *ConflictError
		window     *CancellationWindowError
		notFound   *NotFoundError
		permission *PermissionError
		transition *TransitionError
	)
	switch {
	case errors.As(err, &validation):
		utils.RespondWithFieldError(w, http.StatusBadRequest, validation.Field, validation.Message)
	case errors.As(err, &permission):
		utils.RespondWithError(w, http.StatusForbidden, permission.Message)
	case errors.As(err, &notFound):
		utils.RespondWithError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		utils.RespondWithJSON(w, http.StatusConflict, map[string]interface{}{
			"error":                  conflict.Error(),
			"conflicting_booking_id": conflict.BookingID,
		})
	case errors.As(err, &transition):
		utils.RespondWithError(w, http.StatusConflict, transition.Error())
	case errors.As(err, &window):
		utils.RespondWithJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":    window.Error(),
			"deadline": window.Deadline,
		})
	case IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Booking is busy, please retry")
	default:
		log.Error().Err(err).Msg("unhandled booking error")
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

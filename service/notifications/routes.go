package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/rs/zerolog/log"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/cmd/utils"
)

const (
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100
)

type DeviceStore interface {
	SaveDevice(ctx context.Context, d *models.Device) error
	ListDevices(ctx context.Context, userID uint) ([]models.Device, error)
	DeleteDevice(ctx context.Context, userID, id uint) (bool, error)
	History(ctx context.Context, userID uint, page, pageSize int) ([]models.NotificationHistory, int64, error)
}

// NotificationHandler lets a signed-in user manage the devices that receive
// booking push notifications and read what was sent to them.
type NotificationHandler struct {
	store    DeviceStore
	auth     *utils.Authenticator
	validate *validator.Validate
}

func NewNotificationHandler(store DeviceStore, auth *utils.Authenticator) *NotificationHandler {
	return &NotificationHandler{store: store, auth: auth, validate: utils.NewValidator()}
}

func (h *NotificationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/devices", h.auth.AuthMiddleware(h.RegisterDevice)).Methods("POST")
	router.HandleFunc("/devices", h.auth.AuthMiddleware(h.GetDevices)).Methods("GET")
	router.HandleFunc("/devices/{id}", h.auth.AuthMiddleware(h.DeleteDevice)).Methods("DELETE")
	router.HandleFunc("/notifications/history", h.auth.AuthMiddleware(h.GetHistory)).Methods("GET")
}

type registerDeviceRequest struct {
	Token      string `json:"token" validate:"required"`
	DeviceType string `json:"deviceType" validate:"omitempty,max=50"`
	DeviceName string `json:"deviceName" validate:"omitempty,max=100"`
}

func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		field, msg := utils.TranslateValidationError(err)
		utils.RespondWithFieldError(w, http.StatusBadRequest, field, msg)
		return
	}
	if _, err := expo.NewExponentPushToken(req.Token); err != nil {
		utils.RespondWithFieldError(w, http.StatusBadRequest, "token", "Invalid Expo push token format")
		return
	}

	device := models.Device{
		Token:      req.Token,
		UserID:     userID,
		DeviceType: req.DeviceType,
		DeviceName: req.DeviceName,
	}
	if err := h.store.SaveDevice(r.Context(), &device); err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("failed to register device")
		utils.RespondWithError(w, http.StatusInternalServerError, "Error registering device")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Device registered successfully",
		"device":  device,
	})
}

func (h *NotificationHandler) GetDevices(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	devices, err := h.store.ListDevices(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("failed to list devices")
		utils.RespondWithError(w, http.StatusInternalServerError, "Error retrieving devices")
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	utils.RespondWithJSON(w, http.StatusOK, devices)
}

func (h *NotificationHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid device ID")
		return
	}

	deleted, err := h.store.DeleteDevice(r.Context(), userID, uint(id))
	if err != nil {
		log.Error().Err(err).Uint64("device_id", id).Msg("failed to delete device")
		utils.RespondWithError(w, http.StatusInternalServerError, "Error deleting device")
		return
	}
	if !deleted {
		utils.RespondWithError(w, http.StatusNotFound, "Device not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Device deleted successfully"})
}

func (h *NotificationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	page, pageSize := utils.ParsePagination(r, defaultHistoryPageSize, maxHistoryPageSize)

	history, total, err := h.store.History(r.Context(), userID, page, pageSize)
	if err != nil {
		log.Error().Err(err).Uint("user_id", userID).Msg("failed to load notification history")
		utils.RespondWithError(w, http.StatusInternalServerError, "Error retrieving notification history")
		return
	}
	if history == nil {
		history = []models.NotificationHistory{}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.Paginated("notifications", history, total, page, pageSize))
}

package trainer

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/cmd/utils"
	"github.com/KAsare1/trainer-booking-server/db"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

type Finder interface {
	Trainer(ctx context.Context, id uint) (*models.TrainerProfile, error)
	List(ctx context.Context, page, pageSize int) ([]models.TrainerProfile, int64, error)
}

type TrainerHandler struct {
	trainers Finder
	auth     *utils.Authenticator
}

func NewTrainerHandler(trainers Finder, auth *utils.Authenticator) *TrainerHandler {
	return &TrainerHandler{trainers: trainers, auth: auth}
}

func (h *TrainerHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/trainers", h.auth.AuthMiddleware(h.ListTrainers)).Methods("GET")
	router.HandleFunc("/trainers/{id}", h.auth.AuthMiddleware(h.GetTrainer)).Methods("GET")
}

func (h *TrainerHandler) ListTrainers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := utils.ParsePagination(r, defaultPageSize, maxPageSize)

	trainers, total, err := h.trainers.List(r.Context(), page, pageSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to list trainers")
		utils.RespondWithError(w, http.StatusInternalServerError, "Error retrieving trainers")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.Paginated("trainers", trainers, total, page, pageSize))
}

// GetTrainer hides unpublished profiles from everyone but their owner.
func (h *TrainerHandler) GetTrainer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid trainer ID")
		return
	}

	trainer, err := h.trainers.Trainer(r.Context(), uint(id))
	if errors.Is(err, db.ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Trainer not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Uint64("trainer_id", id).Msg("failed to load trainer")
		utils.RespondWithError(w, http.StatusInternalServerError, "Error retrieving trainer")
		return
	}

	if !trainer.Published {
		userID, _ := utils.GetUserIDFromContext(r.Context())
		if trainer.UserID != userID {
			utils.RespondWithError(w, http.StatusNotFound, "Trainer not found")
			return
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, trainer)
}

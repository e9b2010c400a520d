package review

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/KAsare1/trainer-booking-server/cmd/utils"
	"github.com/KAsare1/trainer-booking-server/service/booking"
)

type ReviewHandler struct {
	service  *Service
	profiles booking.ProfileLookup
	auth     *utils.Authenticator
}

func NewReviewHandler(service *Service, profiles booking.ProfileLookup, auth *utils.Authenticator) *ReviewHandler {
	return &ReviewHandler{service: service, profiles: profiles, auth: auth}
}

func (h *ReviewHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings/{id}/review", h.auth.AuthMiddleware(h.SubmitReview)).Methods("POST")
	router.HandleFunc("/trainers/{id}/reviews", h.auth.AuthMiddleware(h.ListTrainerReviews)).Methods("GET")
}

func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	actor, err := booking.ResolveActor(r.Context(), h.profiles)
	if err != nil {
		booking.WriteError(w, err)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	review, err := h.service.Submit(r.Context(), actor, mux.Vars(r)["id"], req)
	if errors.Is(err, ErrAlreadyReviewed) {
		utils.RespondWithError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		booking.WriteError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, review)
}

func (h *ReviewHandler) ListTrainerReviews(w http.ResponseWriter, r *http.Request) {
	trainerID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid trainer ID")
		return
	}
	page, pageSize := utils.ParsePagination(r, booking.DefaultPageSize, booking.MaxPageSize)

	reviews, total, err := h.service.ListForTrainer(r.Context(), uint(trainerID), page, pageSize)
	if err != nil {
		booking.WriteError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.Paginated("reviews", reviews, total, page, pageSize))
}

package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/KAsare1/trainer-booking-server/cmd/models"
	"github.com/KAsare1/trainer-booking-server/cmd/utils"
	"github.com/KAsare1/trainer-booking-server/service/booking"
)

const referencePrefix = "BKG-"

// attemptSeparator splits the booking id from the per-attempt suffix.
// Paystack accepts it in references and booking ids never contain it.
const attemptSeparator = "."

// maxWebhookBody bounds what we read before the signature is checked.
const maxWebhookBody = 1 << 20

type UserLookup interface {
	User(ctx context.Context, id uint) (*models.User, error)
}

type PaymentHandler struct {
	bookings *booking.Manager
	users    UserLookup
	paystack *Paystack
	profiles booking.ProfileLookup
	auth     *utils.Authenticator
	attempt  func() string
}

func NewPaymentHandler(bookings *booking.Manager, users UserLookup, paystack *Paystack, profiles booking.ProfileLookup, auth *utils.Authenticator) *PaymentHandler {
	return &PaymentHandler{bookings: bookings, users: users, paystack: paystack, profiles: profiles, auth: auth, attempt: newAttempt}
}

func newAttempt() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (h *PaymentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings/{id}/payment", h.auth.AuthMiddleware(h.InitializePayment)).Methods("POST")
	router.HandleFunc("/payments/webhook", h.HandlePaystackWebhook).Methods("POST")
}

// Reference names one payment attempt for a booking. Paystack refuses a
// reference it has seen before, so every attempt gets its own.
func Reference(bookingID, attempt string) string {
	return referencePrefix + bookingID + attemptSeparator + attempt
}

// BookingIDFromReference reports false for references this service did not
// issue.
func BookingIDFromReference(ref string) (string, bool) {
	rest, ok := strings.CutPrefix(ref, referencePrefix)
	if !ok {
		return "", false
	}
	id, _, _ := strings.Cut(rest, attemptSeparator)
	if id == "" {
		return "", false
	}
	return id, true
}

// amountDue is the booking total in the smallest currency unit.
func amountDue(b *models.Booking) int64 {
	return b.TotalPrice.Shift(2).IntPart()
}

func (h *PaymentHandler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	actor, err := booking.ResolveActor(r.Context(), h.profiles)
	if err != nil {
		booking.WriteError(w, err)
		return
	}
	if actor.Party != booking.PartyClient {
		utils.RespondWithError(w, http.StatusForbidden, "Only the booking client can pay for a session")
		return
	}

	b, err := h.bookings.Get(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		booking.WriteError(w, err)
		return
	}
	if !b.Status.IsActive() {
		utils.RespondWithError(w, http.StatusConflict, "Booking is no longer active")
		return
	}
	if !b.RequiresPayment() {
		utils.RespondWithError(w, http.StatusConflict, "Booking does not require payment")
		return
	}

	client, err := h.users.User(r.Context(), b.ClientID)
	if err != nil {
		log.Error().Err(err).Uint("client_id", b.ClientID).Msg("failed to load paying client")
		utils.RespondWithError(w, http.StatusInternalServerError, "Error initializing payment")
		return
	}

	reference := Reference(b.ID, h.attempt())
	result, err := h.paystack.Initialize(r.Context(), InitializeRequest{
		Email:     client.Email,
		Amount:    amountDue(b),
		Reference: reference,
		Metadata: map[string]interface{}{
			"booking_id": b.ID,
			"client_id":  b.ClientID,
			"trainer_id": b.TrainerID,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("booking_id", b.ID).Msg("paystack initialization failed")
		utils.RespondWithError(w, http.StatusBadGateway, "Error initializing payment")
		return
	}

	if _, err := h.bookings.MarkPaymentPending(r.Context(), b.ID); err != nil {
		booking.WriteError(w, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"authorization_url": result.AuthorizationURL,
		"reference":         reference,
		"booking_id":        b.ID,
	})
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// HandlePaystackWebhook moves payment_status for charge and refund events.
// Events we do not act on are acknowledged so Paystack stops retrying.
func (h *PaymentHandler) HandlePaystackWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Error reading request body")
		return
	}
	if !h.paystack.Verify(body, r.Header.Get("X-Paystack-Signature")) {
		log.Warn().Str("ip", utils.ClientIP(r)).Msg("paystack webhook with invalid signature")
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Error parsing webhook payload")
		return
	}

	bookingID, ok := BookingIDFromReference(payload.Data.Reference)
	if !ok {
		log.Info().Str("reference", payload.Data.Reference).Msg("ignoring webhook for foreign reference")
		w.WriteHeader(http.StatusOK)
		return
	}

	var mark func(context.Context, string) (*models.Booking, error)
	switch payload.Event {
	case "charge.success":
		mark = h.bookings.MarkPaid
	case "charge.failed":
		mark = h.bookings.MarkPaymentFailed
	case "refund.processed":
		mark = h.bookings.MarkRefunded
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	if payload.Event == "charge.success" {
		b, err := h.bookings.Get(r.Context(), bookingID, booking.Actor{Party: booking.PartyAdmin})
		if err != nil {
			booking.WriteError(w, err)
			return
		}
		if due := amountDue(b); payload.Data.Amount != due {
			log.Error().Str("booking_id", b.ID).Str("reference", payload.Data.Reference).
				Int64("amount", payload.Data.Amount).Int64("due", due).Msg("paystack charge does not match booking total")
			utils.RespondWithError(w, http.StatusBadRequest, "Charged amount does not match booking total")
			return
		}
	}

	b, err := mark(r.Context(), bookingID)
	if err != nil {
		booking.WriteError(w, err)
		return
	}
	log.Info().Str("booking_id", b.ID).Str("event", payload.Event).Str("payment_status", string(b.PaymentStatus)).
		Int64("amount", payload.Data.Amount).Msg("payment status updated")
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

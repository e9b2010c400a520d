package ws

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/KAsare1/trainer-booking-server/cmd/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub  *Hub
	auth *utils.Authenticator
}

func NewWSHandler(hub *Hub, auth *utils.Authenticator) *WSHandler {
	return &WSHandler{hub: hub, auth: auth}
}

func (h *WSHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", tokenFromQuery(h.auth.AuthMiddleware(h.HandleWebSocket)))
}

// tokenFromQuery lets browsers, which cannot set headers on a websocket
// handshake, pass the token as ?token=.
func tokenFromQuery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("token"); token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next(w, r)
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Uint("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: h.hub, userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.hub.register(client)
	log.Debug().Uint("user_id", userID).Msg("websocket connection established")

	go client.writePump()
	go client.readPump()
}

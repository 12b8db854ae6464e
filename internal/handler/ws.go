package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"room-score-server/internal/hub"
	"room-score-server/internal/service"
)

// closeAuthFailed is the close code sent when the connection fails
// authentication after the upgrade. Browser clients cannot read HTTP
// error bodies on a websocket URL, so the failure is signaled in-band.
const closeAuthFailed = 4401

// WSHandler upgrades websocket connections and hands them to the hub.
type WSHandler struct {
	hub      *hub.Hub
	rooms    *service.RoomService
	verifier TokenVerifier
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(h *hub.Hub, rooms *service.RoomService, verifier TokenVerifier, allowedOrigins []string, log zerolog.Logger) *WSHandler {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return &WSHandler{
		hub:      h,
		rooms:    rooms,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		log: log,
	}
}

// Serve upgrades the connection, authenticates it from the token query
// parameter, and runs the client pumps until the connection drops. A bad
// token is reported with an in-band close code after the upgrade.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	playerID, err := h.verifier.Verify(c.Query("token"))
	if err != nil {
		msg := websocket.FormatCloseMessage(closeAuthFailed, "authentication failed")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	client := hub.NewClient(h.hub, roomGate{rooms: h.rooms}, conn, playerID, h.log)
	client.Run(c.Request.Context())
}

// roomGate admits websocket subscriptions: a player may only subscribe
// to a room they participate in. Departed participants may still watch;
// the room history is theirs too.
type roomGate struct {
	rooms *service.RoomService
}

func (g roomGate) Subscribe(ctx context.Context, roomID int64, playerID string) (json.RawMessage, error) {
	detail, err := g.rooms.RoomDetail(ctx, roomID)
	if err != nil {
		return nil, err
	}
	member := false
	for _, p := range detail.Players {
		if p.PlayerID == playerID {
			member = true
			break
		}
	}
	if !member {
		return nil, service.ErrParticipantNotFound
	}
	return json.Marshal(detail)
}

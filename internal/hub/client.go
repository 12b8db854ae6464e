package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	sendBuffer = 32
)

// Gate authorizes a room subscription for a player and returns the
// snapshot to send as the join acknowledgement.
type Gate interface {
	Subscribe(ctx context.Context, roomID int64, playerID string) (json.RawMessage, error)
}

type clientMessage struct {
	Type   string `json:"type"`
	RoomID int64  `json:"roomId,omitempty"`
}

type serverMessage struct {
	Type    string          `json:"type"`
	RoomID  int64           `json:"roomId,omitempty"`
	Room    json.RawMessage `json:"room,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Client owns one websocket connection: a read pump handling join-room
// and leave-room messages, and a write pump draining the send buffer and
// keeping the connection alive with pings.
type Client struct {
	id       string
	playerID string

	hub  *Hub
	gate Gate
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger
}

func NewClient(h *Hub, gate Gate, conn *websocket.Conn, playerID string, log zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		playerID: playerID,
		hub:      h,
		gate:     gate,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		log: log.With().
			Str("conn_id", id).
			Str("player_id", playerID).
			Logger(),
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) PlayerID() string { return c.playerID }

// Enqueue queues payload for delivery. Non-blocking; false means the
// buffer is full.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears down the underlying connection, which unwinds both pumps.
func (c *Client) Close() {
	c.conn.Close()
}

// Run services the connection until it drops. It sends the auth-success
// acknowledgement, then pumps messages both ways. Blocks; call from the
// upgrade handler's goroutine.
func (c *Client) Run(ctx context.Context) {
	ack, _ := json.Marshal(serverMessage{Type: "auth-success", Message: c.playerID})
	c.Enqueue(ack)

	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}

		switch msg.Type {
		case "join-room":
			c.handleJoin(ctx, msg.RoomID)
		case "leave-room":
			c.hub.Leave(c)
		default:
			c.sendError("unknown message type")
		}
	}
}

func (c *Client) handleJoin(ctx context.Context, roomID int64) {
	snapshot, err := c.gate.Subscribe(ctx, roomID, c.playerID)
	if err != nil {
		c.log.Info().Err(err).Int64("room_id", roomID).Msg("room subscription refused")
		c.sendError(err.Error())
		return
	}

	c.hub.Join(roomID, c)

	ack, err := json.Marshal(serverMessage{Type: "joined-room", RoomID: roomID, Room: snapshot})
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal join ack")
		return
	}
	c.Enqueue(ack)
}

func (c *Client) sendError(message string) {
	payload, _ := json.Marshal(serverMessage{Type: "error", Message: message})
	c.Enqueue(payload)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Package hub tracks live websocket connections and fans room snapshots
// out to every connection subscribed to the room. The hub knows nothing
// about the database; it moves pre-marshaled payloads.
package hub

import (
	"sync"

	"github.com/rs/zerolog"
)

// Conn is one live client connection as the hub sees it. Enqueue must not
// block: it reports false when the outbound buffer is full, and the hub
// drops the connection in response.
type Conn interface {
	ID() string
	PlayerID() string
	Enqueue(payload []byte) bool
	Close()
}

// Hub is the connection registry. A connection subscribes to at most one
// room at a time; joining a second room implicitly leaves the first.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[int64]map[string]Conn
	byConn map[string]int64

	log zerolog.Logger
}

func New(log zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[int64]map[string]Conn),
		byConn: make(map[string]int64),
		log:    log.With().Str("component", "hub").Logger(),
	}
}

// Join subscribes c to roomID, detaching it from any previous room first.
func (h *Hub) Join(roomID int64, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.detachLocked(c.ID())

	conns, ok := h.rooms[roomID]
	if !ok {
		conns = make(map[string]Conn)
		h.rooms[roomID] = conns
	}
	conns[c.ID()] = c
	h.byConn[c.ID()] = roomID

	h.log.Debug().
		Int64("room_id", roomID).
		Str("conn_id", c.ID()).
		Str("player_id", c.PlayerID()).
		Msg("connection joined room")
}

// Leave unsubscribes c from whatever room it is in. Safe to call for a
// connection that never joined.
func (h *Hub) Leave(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c.ID())
}

func (h *Hub) detachLocked(connID string) {
	roomID, ok := h.byConn[connID]
	if !ok {
		return
	}
	delete(h.byConn, connID)
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Broadcast delivers payload to every connection subscribed to roomID.
// Connections whose buffers are full are dropped rather than allowed to
// stall the rest of the room; they reconnect and resync from a fresh
// snapshot.
func (h *Hub) Broadcast(roomID int64, payload []byte) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var stale []Conn
	for _, c := range targets {
		if !c.Enqueue(payload) {
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		h.log.Warn().
			Int64("room_id", roomID).
			Str("conn_id", c.ID()).
			Msg("dropping slow connection")
		h.Leave(c)
		c.Close()
	}
}

// RoomSize returns the number of connections subscribed to roomID.
func (h *Hub) RoomSize(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// RoomOf returns the room the connection is subscribed to, if any.
func (h *Hub) RoomOf(connID string) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	roomID, ok := h.byConn[connID]
	return roomID, ok
}

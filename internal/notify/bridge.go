// Package notify turns committed room mutations into websocket
// broadcasts. Delivery is best effort: a failed snapshot or broadcast is
// logged and dropped, never surfaced to the request that caused it.
package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"room-score-server/internal/model"
)

// Snapshots supplies whole-state room snapshots.
type Snapshots interface {
	RoomDetail(ctx context.Context, roomID int64) (*model.RoomDetail, error)
}

// Broadcaster fans a payload out to a room's live connections.
type Broadcaster interface {
	Broadcast(roomID int64, payload []byte)
}

type roomUpdate struct {
	Type  string            `json:"type"`
	Event string            `json:"event"`
	Room  *model.RoomDetail `json:"room"`
}

// Bridge reads a fresh snapshot after each committed mutation and pushes
// it to the room's subscribers. Snapshots are whole-state, so clients
// that missed an update converge on the next one.
type Bridge struct {
	source Snapshots
	sink   Broadcaster
	log    zerolog.Logger
}

func NewBridge(source Snapshots, sink Broadcaster, log zerolog.Logger) *Bridge {
	return &Bridge{
		source: source,
		sink:   sink,
		log:    log.With().Str("component", "notify").Logger(),
	}
}

// RoomUpdated broadcasts the room's current state to its subscribers.
// The event string tells clients what kind of change happened; the
// snapshot itself is authoritative either way.
func (b *Bridge) RoomUpdated(ctx context.Context, roomID int64, event string) {
	detail, err := b.source.RoomDetail(ctx, roomID)
	if err != nil {
		b.log.Error().Err(err).Int64("room_id", roomID).Str("event", event).
			Msg("failed to build room snapshot")
		return
	}

	payload, err := json.Marshal(roomUpdate{Type: "room-updated", Event: event, Room: detail})
	if err != nil {
		b.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to marshal room snapshot")
		return
	}
	b.sink.Broadcast(roomID, payload)
}

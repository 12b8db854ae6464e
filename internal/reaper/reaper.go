// Package reaper closes rooms that have gone idle. Games in this domain
// are frequently abandoned mid-session, so live rooms without recent
// transfer activity are settled and finished on a schedule instead of
// lingering forever.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"room-score-server/internal/config"
	"room-score-server/internal/service"
)

// RoomEnder is the slice of the room service the reaper needs.
type RoomEnder interface {
	FindIdleRooms(ctx context.Context, idleFor time.Duration) ([]int64, error)
	EndRoom(ctx context.Context, roomID int64) error
}

// Notifier pushes the final snapshot of a reaped room to its
// subscribers.
type Notifier interface {
	RoomUpdated(ctx context.Context, roomID int64, event string)
}

// Reaper sweeps for idle rooms on a fixed interval and ends each one
// through the normal settlement path, so reaped rooms get the same
// win/loss accounting as explicitly ended ones.
type Reaper struct {
	rooms    RoomEnder
	notifier Notifier
	cron     *cron.Cron

	sweepInterval time.Duration
	idleTimeout   time.Duration

	log zerolog.Logger
}

func New(rooms RoomEnder, notifier Notifier, cfg config.ReaperConfig, log zerolog.Logger) *Reaper {
	return &Reaper{
		rooms:         rooms,
		notifier:      notifier,
		cron:          cron.New(),
		sweepInterval: cfg.SweepInterval,
		idleTimeout:   cfg.IdleTimeout,
		log:           log.With().Str("component", "reaper").Logger(),
	}
}

// Start schedules the sweep. Call Stop to drain on shutdown.
func (r *Reaper) Start() error {
	spec := fmt.Sprintf("@every %s", r.sweepInterval)
	if _, err := r.cron.AddFunc(spec, r.Sweep); err != nil {
		return fmt.Errorf("failed to schedule reaper sweep: %w", err)
	}
	r.cron.Start()
	r.log.Info().
		Dur("sweep_interval", r.sweepInterval).
		Dur("idle_timeout", r.idleTimeout).
		Msg("reaper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep ends every live room idle for longer than the timeout. One
// room's failure does not stop the rest of the sweep; a room that raced
// with an explicit end is skipped silently.
func (r *Reaper) Sweep() {
	ctx := context.Background()

	ids, err := r.rooms.FindIdleRooms(ctx, r.idleTimeout)
	if err != nil {
		r.log.Error().Err(err).Msg("idle room scan failed")
		return
	}
	if len(ids) == 0 {
		return
	}

	r.log.Info().Int("count", len(ids)).Msg("reaping idle rooms")
	for _, roomID := range ids {
		if err := r.rooms.EndRoom(ctx, roomID); err != nil {
			if errors.Is(err, service.ErrRoomClosed) {
				continue
			}
			r.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to reap room")
			continue
		}
		r.log.Info().Int64("room_id", roomID).Msg("reaped idle room")
		if r.notifier != nil {
			r.notifier.RoomUpdated(ctx, roomID, "room-ended")
		}
	}
}

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrations holds the schema statements in application order. Each entry is
// idempotent so Migrate can run on every startup.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "players table",
		sql: `
		CREATE TABLE IF NOT EXISTS players (
			player_id TEXT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`,
	},
	{
		name: "scores table",
		sql: `
		CREATE TABLE IF NOT EXISTS scores (
			player_id TEXT PRIMARY KEY REFERENCES players(player_id) ON DELETE CASCADE,
			current_total BIGINT NOT NULL DEFAULT 0,
			games_played INT NOT NULL DEFAULT 0,
			games_won INT NOT NULL DEFAULT 0,
			games_lost INT NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_scores_total ON scores(current_total DESC);
	`,
	},
	{
		name: "rooms table",
		sql: `
		CREATE TABLE IF NOT EXISTS rooms (
			room_id BIGSERIAL PRIMARY KEY,
			room_code VARCHAR(8) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'waiting'
				CHECK (status IN ('waiting', 'playing', 'finished', 'cancelled')),
			max_players INT NOT NULL,
			min_players INT NOT NULL,
			created_by TEXT NOT NULL REFERENCES players(player_id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			end_time TIMESTAMPTZ
		);
		-- Code uniqueness only matters while the room is live; finished and
		-- cancelled rooms release their code for reuse.
		CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_live_code
			ON rooms(room_code) WHERE status IN ('waiting', 'playing');
		CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms(status);
	`,
	},
	{
		name: "room_participants table",
		sql: `
		CREATE TABLE IF NOT EXISTS room_participants (
			participation_id BIGSERIAL PRIMARY KEY,
			room_id BIGINT NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
			player_id TEXT NOT NULL REFERENCES players(player_id),
			initial_score BIGINT NOT NULL DEFAULT 0,
			final_score BIGINT NOT NULL DEFAULT 0,
			position INT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'active'
				CHECK (status IN ('active', 'left', 'kicked', 'disconnected')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			left_at TIMESTAMPTZ,
			UNIQUE (room_id, player_id)
		);
		CREATE INDEX IF NOT EXISTS idx_participants_player
			ON room_participants(player_id, status);
	`,
	},
	{
		name: "transfer_records table",
		sql: `
		CREATE TABLE IF NOT EXISTS transfer_records (
			transfer_id BIGSERIAL PRIMARY KEY,
			from_player_id TEXT NOT NULL REFERENCES players(player_id),
			to_player_id TEXT NOT NULL REFERENCES players(player_id),
			points BIGINT NOT NULL CHECK (points > 0),
			room_id BIGINT NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transfers_room_time
			ON transfer_records(room_id, created_at DESC);
	`,
	},
	{
		name: "score_transactions table",
		sql: `
		CREATE TABLE IF NOT EXISTS score_transactions (
			transaction_id BIGSERIAL PRIMARY KEY,
			player_id TEXT NOT NULL REFERENCES players(player_id),
			room_id BIGINT REFERENCES rooms(room_id) ON DELETE SET NULL,
			points_change BIGINT NOT NULL,
			current_total BIGINT NOT NULL,
			description TEXT,
			event_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_score_tx_player_time
			ON score_transactions(player_id, event_time DESC);
	`,
	},
}

// Migrate applies the database schema. Safe to call on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %q failed: %w", m.name, err)
		}
		log.Debug().Str("migration", m.name).Msg("Migration applied")
	}
	log.Info().Int("count", len(migrations)).Msg("All migrations completed")
	return nil
}

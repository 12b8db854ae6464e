// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"room-score-server/internal/model"
)

// Common errors for repository operations.
var (
	ErrPlayerNotFound      = errors.New("player not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrCodeTaken           = errors.New("room code already in use")
)

// Querier is the subset of pgx operations the repositories run against.
// Both *pgxpool.Pool and pgx.Tx satisfy it, so the same query code serves
// plain reads and statements inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PlayerRepository handles player and aggregate score persistence.
type PlayerRepository struct {
	pool *pgxpool.Pool
}

// NewPlayerRepository creates a new PlayerRepository instance.
func NewPlayerRepository(pool *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{pool: pool}
}

// Upsert creates a player on first login or refreshes the display fields on
// subsequent logins. The aggregate score row is created alongside so every
// player always has one.
func (r *PlayerRepository) Upsert(ctx context.Context, playerID, username, avatarURL string) (*model.Player, error) {
	const query = `
		INSERT INTO players (player_id, username, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (player_id) DO UPDATE SET
			username = COALESCE(NULLIF(EXCLUDED.username, ''), players.username),
			avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), players.avatar_url),
			updated_at = NOW()
		RETURNING player_id, username, avatar_url, created_at, updated_at
	`

	var player model.Player
	err := r.pool.QueryRow(ctx, query, playerID, username, avatarURL).Scan(
		&player.PlayerID,
		&player.Username,
		&player.AvatarURL,
		&player.CreatedAt,
		&player.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert player: %w", err)
	}

	const scoreQuery = `
		INSERT INTO scores (player_id) VALUES ($1)
		ON CONFLICT (player_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, scoreQuery, playerID); err != nil {
		return nil, fmt.Errorf("failed to ensure score row: %w", err)
	}

	return &player, nil
}

// GetByID retrieves a player by ID.
// Returns ErrPlayerNotFound if the player does not exist.
func (r *PlayerRepository) GetByID(ctx context.Context, playerID string) (*model.Player, error) {
	const query = `
		SELECT player_id, username, avatar_url, created_at, updated_at
		FROM players
		WHERE player_id = $1
	`

	var player model.Player
	err := r.pool.QueryRow(ctx, query, playerID).Scan(
		&player.PlayerID,
		&player.Username,
		&player.AvatarURL,
		&player.CreatedAt,
		&player.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	return &player, nil
}

// Exists checks whether a player exists, using the given querier so the
// check can run inside a transaction.
func (r *PlayerRepository) Exists(ctx context.Context, q Querier, playerID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM players WHERE player_id = $1)`

	var exists bool
	if err := q.QueryRow(ctx, query, playerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check player existence: %w", err)
	}
	return exists, nil
}

// GetScore retrieves a player's aggregate score record.
func (r *PlayerRepository) GetScore(ctx context.Context, playerID string) (*model.Score, error) {
	const query = `
		SELECT player_id, current_total, games_played, games_won, games_lost, last_updated
		FROM scores
		WHERE player_id = $1
	`

	var score model.Score
	err := r.pool.QueryRow(ctx, query, playerID).Scan(
		&score.PlayerID,
		&score.CurrentTotal,
		&score.GamesPlayed,
		&score.GamesWon,
		&score.GamesLost,
		&score.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get score: %w", err)
	}

	return &score, nil
}

// GetLeaderboard retrieves the top players by aggregate total.
func (r *PlayerRepository) GetLeaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	const query = `
		SELECT p.player_id, p.username, s.current_total,
		       ROW_NUMBER() OVER (ORDER BY s.current_total DESC) AS rank
		FROM players p
		JOIN scores s ON p.player_id = s.player_id
		ORDER BY s.current_total DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*model.LeaderboardEntry
	for rows.Next() {
		var entry model.LeaderboardEntry
		err := rows.Scan(
			&entry.PlayerID,
			&entry.Username,
			&entry.CurrentTotal,
			&entry.Rank,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	return entries, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"room-score-server/internal/model"
)

const roomColumns = `room_id, room_code, status, max_players, min_players, created_by, created_at, updated_at, end_time`

// RoomRepository handles room persistence.
type RoomRepository struct {
	pool *pgxpool.Pool
}

// NewRoomRepository creates a new RoomRepository instance.
func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	var room model.Room
	err := row.Scan(
		&room.RoomID,
		&room.RoomCode,
		&room.Status,
		&room.MaxPlayers,
		&room.MinPlayers,
		&room.CreatedBy,
		&room.CreatedAt,
		&room.UpdatedAt,
		&room.EndTime,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Create inserts a new room in waiting status. The partial unique index on
// live room codes is the backstop against concurrent creation with the same
// code; a collision surfaces as ErrCodeTaken so the caller can retry with a
// fresh code.
func (r *RoomRepository) Create(ctx context.Context, q Querier, code, createdBy string, maxPlayers, minPlayers int) (*model.Room, error) {
	const query = `
		INSERT INTO rooms (room_code, status, max_players, min_players, created_by, created_at, updated_at)
		VALUES ($1, 'waiting', $2, $3, $4, NOW(), NOW())
		RETURNING ` + roomColumns

	room, err := scanRoom(q.QueryRow(ctx, query, code, maxPlayers, minPlayers, createdBy))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrCodeTaken
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

// CodeInUse reports whether a code is held by any live room.
func (r *RoomRepository) CodeInUse(ctx context.Context, q Querier, code string) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM rooms
			WHERE room_code = $1 AND status IN ('waiting', 'playing')
		)
	`

	var inUse bool
	if err := q.QueryRow(ctx, query, code).Scan(&inUse); err != nil {
		return false, fmt.Errorf("failed to check room code: %w", err)
	}
	return inUse, nil
}

// Get retrieves a room by ID.
func (r *RoomRepository) Get(ctx context.Context, q Querier, roomID int64) (*model.Room, error) {
	const query = `SELECT ` + roomColumns + ` FROM rooms WHERE room_id = $1`

	room, err := scanRoom(q.QueryRow(ctx, query, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// GetForUpdate retrieves a room by ID with the row locked for the duration
// of the enclosing transaction, serializing concurrent mutations of the same
// room.
func (r *RoomRepository) GetForUpdate(ctx context.Context, q Querier, roomID int64) (*model.Room, error) {
	const query = `SELECT ` + roomColumns + ` FROM rooms WHERE room_id = $1 FOR UPDATE`

	room, err := scanRoom(q.QueryRow(ctx, query, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to lock room: %w", err)
	}
	return room, nil
}

// GetLiveByCode retrieves the live room holding the given code, locked for
// update. Codes are only unique among live rooms, so terminal rooms are
// excluded from the lookup.
func (r *RoomRepository) GetLiveByCode(ctx context.Context, q Querier, code string) (*model.Room, error) {
	const query = `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE room_code = $1 AND status IN ('waiting', 'playing')
		FOR UPDATE
	`

	room, err := scanRoom(q.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room by code: %w", err)
	}
	return room, nil
}

// Finish marks a room finished and stamps the end time. One-way: callers
// check the current status first under the row lock.
func (r *RoomRepository) Finish(ctx context.Context, q Querier, roomID int64) error {
	const query = `
		UPDATE rooms
		SET status = 'finished', end_time = NOW(), updated_at = NOW()
		WHERE room_id = $1
	`

	tag, err := q.Exec(ctx, query, roomID)
	if err != nil {
		return fmt.Errorf("failed to finish room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// MarkPlaying moves a waiting room to playing. No-op for any other status.
func (r *RoomRepository) MarkPlaying(ctx context.Context, q Querier, roomID int64) error {
	const query = `
		UPDATE rooms
		SET status = 'playing', updated_at = NOW()
		WHERE room_id = $1 AND status = 'waiting'
	`

	if _, err := q.Exec(ctx, query, roomID); err != nil {
		return fmt.Errorf("failed to mark room playing: %w", err)
	}
	return nil
}

// Touch bumps the room's updated_at, recording activity.
func (r *RoomRepository) Touch(ctx context.Context, q Querier, roomID int64) error {
	const query = `UPDATE rooms SET updated_at = NOW() WHERE room_id = $1`
	if _, err := q.Exec(ctx, query, roomID); err != nil {
		return fmt.Errorf("failed to touch room: %w", err)
	}
	return nil
}

// FindIdle returns the IDs of live rooms with no transfer inside the idle
// window; a room that never saw a transfer counts from its creation time.
func (r *RoomRepository) FindIdle(ctx context.Context, idleFor time.Duration) ([]int64, error) {
	const query = `
		SELECT g.room_id
		FROM rooms g
		LEFT JOIN LATERAL (
			SELECT MAX(created_at) AS last_transfer
			FROM transfer_records tr
			WHERE tr.room_id = g.room_id
		) t ON TRUE
		WHERE g.status IN ('waiting', 'playing')
		  AND COALESCE(t.last_transfer, g.created_at) < NOW() - make_interval(secs => $1)
	`

	rows, err := r.pool.Query(ctx, query, idleFor.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to find idle rooms: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan room id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating idle rooms: %w", err)
	}

	return ids, nil
}

// ListByPlayer returns the live rooms in which the player holds an active
// participation.
func (r *RoomRepository) ListByPlayer(ctx context.Context, playerID string) ([]*model.Room, error) {
	const query = `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE status IN ('waiting', 'playing')
		  AND room_id IN (
			SELECT room_id FROM room_participants
			WHERE player_id = $1 AND status = 'active'
		  )
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rooms: %w", err)
	}

	return rooms, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"room-score-server/internal/model"
)

const participantColumns = `participation_id, room_id, player_id, initial_score, final_score, position, status, created_at, updated_at, left_at`

// ParticipantRepository handles room membership persistence.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository instance.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

func scanParticipant(row pgx.Row) (*model.Participant, error) {
	var p model.Participant
	err := row.Scan(
		&p.ParticipationID,
		&p.RoomID,
		&p.PlayerID,
		&p.InitialScore,
		&p.FinalScore,
		&p.Position,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.LeftAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get retrieves the participation of a player in a room, whatever its
// status. Returns ErrParticipantNotFound if the player never joined.
func (r *ParticipantRepository) Get(ctx context.Context, q Querier, roomID int64, playerID string) (*model.Participant, error) {
	const query = `
		SELECT ` + participantColumns + `
		FROM room_participants
		WHERE room_id = $1 AND player_id = $2
	`

	p, err := scanParticipant(q.QueryRow(ctx, query, roomID, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// ActiveCount counts the active participations of a room. Run inside the
// same transaction as the mutation it guards so the capacity check and the
// insert see the same state.
func (r *ParticipantRepository) ActiveCount(ctx context.Context, q Querier, roomID int64) (int, error) {
	const query = `
		SELECT COUNT(*) FROM room_participants
		WHERE room_id = $1 AND status = 'active'
	`

	var count int
	if err := q.QueryRow(ctx, query, roomID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

// NextPosition returns the next free seat position in a room.
func (r *ParticipantRepository) NextPosition(ctx context.Context, q Querier, roomID int64) (int, error) {
	const query = `
		SELECT COALESCE(MAX(position), 0) + 1 FROM room_participants
		WHERE room_id = $1
	`

	var position int
	if err := q.QueryRow(ctx, query, roomID).Scan(&position); err != nil {
		return 0, fmt.Errorf("failed to compute next position: %w", err)
	}
	return position, nil
}

// PositionTaken reports whether an active participant already holds the
// given seat position.
func (r *ParticipantRepository) PositionTaken(ctx context.Context, q Querier, roomID int64, position int) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM room_participants
			WHERE room_id = $1 AND position = $2 AND status = 'active'
		)
	`

	var taken bool
	if err := q.QueryRow(ctx, query, roomID, position).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check seat position: %w", err)
	}
	return taken, nil
}

// Insert creates a fresh active participation with both scores at zero.
func (r *ParticipantRepository) Insert(ctx context.Context, q Querier, roomID int64, playerID string, position int) (*model.Participant, error) {
	const query = `
		INSERT INTO room_participants (room_id, player_id, initial_score, final_score, position, status, created_at, updated_at)
		VALUES ($1, $2, 0, 0, $3, 'active', NOW(), NOW())
		RETURNING ` + participantColumns

	p, err := scanParticipant(q.QueryRow(ctx, query, roomID, playerID, position))
	if err != nil {
		return nil, fmt.Errorf("failed to insert participant: %w", err)
	}
	return p, nil
}

// Reactivate flips a prior non-active participation back to active, keeping
// its seat and room balance. This is what makes rejoin idempotent instead of
// duplicating the row.
func (r *ParticipantRepository) Reactivate(ctx context.Context, q Querier, participationID int64) (*model.Participant, error) {
	const query = `
		UPDATE room_participants
		SET status = 'active', left_at = NULL, updated_at = NOW()
		WHERE participation_id = $1
		RETURNING ` + participantColumns

	p, err := scanParticipant(q.QueryRow(ctx, query, participationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to reactivate participant: %w", err)
	}
	return p, nil
}

// SetStatus transitions a participation's status. Returns false without
// touching the row when the participation is already in the target status,
// which makes leave and kick idempotent.
func (r *ParticipantRepository) SetStatus(ctx context.Context, q Querier, roomID int64, playerID, status string) (bool, error) {
	const query = `
		UPDATE room_participants
		SET status = $3,
		    left_at = CASE WHEN $3 IN ('left', 'kicked', 'disconnected') THEN NOW() ELSE left_at END,
		    updated_at = NOW()
		WHERE room_id = $1 AND player_id = $2 AND status <> $3
	`

	tag, err := q.Exec(ctx, query, roomID, playerID, status)
	if err != nil {
		return false, fmt.Errorf("failed to set participant status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HasActiveElsewhere reports whether the player holds an active
// participation in any live room other than the given one (0 to mean none).
func (r *ParticipantRepository) HasActiveElsewhere(ctx context.Context, q Querier, playerID string, excludeRoomID int64) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1
			FROM room_participants rp
			JOIN rooms g ON g.room_id = rp.room_id
			WHERE rp.player_id = $1
			  AND rp.status = 'active'
			  AND rp.room_id <> $2
			  AND g.status IN ('waiting', 'playing')
		)
	`

	var exists bool
	if err := q.QueryRow(ctx, query, playerID, excludeRoomID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active participation: %w", err)
	}
	return exists, nil
}

// LockPair locks and returns the participations of the given players in a
// room. Rows are locked in player-id order so two concurrent transfers
// touching the same players acquire locks in the same sequence and serialize
// instead of deadlocking.
func (r *ParticipantRepository) LockPair(ctx context.Context, q Querier, roomID int64, playerIDs []string) ([]*model.Participant, error) {
	const query = `
		SELECT ` + participantColumns + `
		FROM room_participants
		WHERE room_id = $1 AND player_id = ANY($2)
		ORDER BY player_id
		FOR UPDATE
	`

	rows, err := q.Query(ctx, query, roomID, playerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to lock participants: %w", err)
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

// AddToFinalScore applies a delta to a participation's room-scoped balance.
func (r *ParticipantRepository) AddToFinalScore(ctx context.Context, q Querier, roomID int64, playerID string, delta int64) error {
	const query = `
		UPDATE room_participants
		SET final_score = final_score + $3, updated_at = NOW()
		WHERE room_id = $1 AND player_id = $2
	`

	tag, err := q.Exec(ctx, query, roomID, playerID, delta)
	if err != nil {
		return fmt.Errorf("failed to update final score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

// ListByRoom returns all participations of a room joined with player display
// data, ordered by seat position.
func (r *ParticipantRepository) ListByRoom(ctx context.Context, q Querier, roomID int64) ([]*model.RoomParticipantView, error) {
	const query = `
		SELECT rp.participation_id, rp.player_id, p.username, p.avatar_url,
		       rp.position, rp.status, rp.final_score
		FROM room_participants rp
		JOIN players p ON rp.player_id = p.player_id
		WHERE rp.room_id = $1
		ORDER BY rp.position
	`

	rows, err := q.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var views []*model.RoomParticipantView
	for rows.Next() {
		var v model.RoomParticipantView
		err := rows.Scan(
			&v.ParticipationID,
			&v.PlayerID,
			&v.Username,
			&v.AvatarURL,
			&v.Position,
			&v.Status,
			&v.Balance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant view: %w", err)
		}
		views = append(views, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant views: %w", err)
	}

	return views, nil
}

// ListForSettlement locks and returns all participations of a room, ordered
// by player id. Used by room ending to read final balances under lock.
func (r *ParticipantRepository) ListForSettlement(ctx context.Context, q Querier, roomID int64) ([]*model.Participant, error) {
	const query = `
		SELECT ` + participantColumns + `
		FROM room_participants
		WHERE room_id = $1
		ORDER BY player_id
		FOR UPDATE
	`

	rows, err := q.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock participants for settlement: %w", err)
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

// MarkAllLeft transitions every participation of a room that is not already
// departed to left. Part of room ending.
func (r *ParticipantRepository) MarkAllLeft(ctx context.Context, q Querier, roomID int64) error {
	const query = `
		UPDATE room_participants
		SET status = 'left', left_at = NOW(), updated_at = NOW()
		WHERE room_id = $1 AND status = 'active'
	`

	if _, err := q.Exec(ctx, query, roomID); err != nil {
		return fmt.Errorf("failed to mark participants left: %w", err)
	}
	return nil
}

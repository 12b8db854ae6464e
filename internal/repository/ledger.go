package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"room-score-server/internal/model"
)

// LedgerRepository handles the append-only audit relations (transfer records
// and score transactions) and the locked mutation of global score totals.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// EnsureScoreRows creates missing aggregate score rows for the given
// players. Needed before locking, since FOR UPDATE cannot lock a row that
// does not exist yet.
func (r *LedgerRepository) EnsureScoreRows(ctx context.Context, q Querier, playerIDs []string) error {
	const query = `
		INSERT INTO scores (player_id)
		SELECT unnest($1::text[])
		ON CONFLICT (player_id) DO NOTHING
	`

	if _, err := q.Exec(ctx, query, playerIDs); err != nil {
		return fmt.Errorf("failed to ensure score rows: %w", err)
	}
	return nil
}

// LockTotals reads the current aggregate totals of the given players with
// the rows locked for the duration of the enclosing transaction. Rows are
// locked in player-id order so concurrent transfers serialize on a canonical
// sequence; the loser of a lock conflict waits, it does not fail.
func (r *LedgerRepository) LockTotals(ctx context.Context, q Querier, playerIDs []string) (map[string]int64, error) {
	const query = `
		SELECT player_id, current_total
		FROM scores
		WHERE player_id = ANY($1)
		ORDER BY player_id
		FOR UPDATE
	`

	rows, err := q.Query(ctx, query, playerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to lock score totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64, len(playerIDs))
	for rows.Next() {
		var id string
		var total int64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("failed to scan score total: %w", err)
		}
		totals[id] = total
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score totals: %w", err)
	}

	return totals, nil
}

// SetTotal writes a player's new aggregate total.
func (r *LedgerRepository) SetTotal(ctx context.Context, q Querier, playerID string, total int64) error {
	const query = `
		UPDATE scores
		SET current_total = $2, last_updated = NOW()
		WHERE player_id = $1
	`

	tag, err := q.Exec(ctx, query, playerID, total)
	if err != nil {
		return fmt.Errorf("failed to set score total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// InsertScoreTransaction appends one row to the global score ledger,
// capturing the running total at write time.
func (r *LedgerRepository) InsertScoreTransaction(ctx context.Context, q Querier, playerID string, roomID *int64, change, newTotal int64, description *string) (*model.ScoreTransaction, error) {
	const query = `
		INSERT INTO score_transactions (player_id, room_id, points_change, current_total, description, event_time)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING transaction_id, player_id, room_id, points_change, current_total, description, event_time
	`

	var tx model.ScoreTransaction
	err := q.QueryRow(ctx, query, playerID, roomID, change, newTotal, description).Scan(
		&tx.TransactionID,
		&tx.PlayerID,
		&tx.RoomID,
		&tx.PointsChange,
		&tx.CurrentTotal,
		&tx.Description,
		&tx.EventTime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert score transaction: %w", err)
	}

	return &tx, nil
}

// InsertTransfer appends the immutable audit row of one point movement.
func (r *LedgerRepository) InsertTransfer(ctx context.Context, q Querier, fromID, toID string, points, roomID int64, description *string) (*model.TransferRecord, error) {
	const query = `
		INSERT INTO transfer_records (from_player_id, to_player_id, points, room_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING transfer_id, from_player_id, to_player_id, points, room_id, description, created_at
	`

	var rec model.TransferRecord
	err := q.QueryRow(ctx, query, fromID, toID, points, roomID, description).Scan(
		&rec.TransferID,
		&rec.FromPlayerID,
		&rec.ToPlayerID,
		&rec.Points,
		&rec.RoomID,
		&rec.Description,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transfer record: %w", err)
	}

	return &rec, nil
}

// RecentByRoom returns the newest transfer records of a room, newest first.
func (r *LedgerRepository) RecentByRoom(ctx context.Context, q Querier, roomID int64, limit int) ([]*model.TransferRecordView, error) {
	const query = `
		SELECT transfer_id, from_player_id, to_player_id, points,
		       COALESCE(description, ''), created_at
		FROM transfer_records
		WHERE room_id = $1
		ORDER BY created_at DESC, transfer_id DESC
		LIMIT $2
	`

	rows, err := q.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer records: %w", err)
	}
	defer rows.Close()

	var views []*model.TransferRecordView
	for rows.Next() {
		var v model.TransferRecordView
		err := rows.Scan(
			&v.TransferID,
			&v.From,
			&v.To,
			&v.Points,
			&v.Description,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer record: %w", err)
		}
		views = append(views, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfer records: %w", err)
	}

	return views, nil
}

// HistoryByPlayer returns a player's global score ledger, newest first.
func (r *LedgerRepository) HistoryByPlayer(ctx context.Context, playerID string, limit int) ([]*model.ScoreTransaction, error) {
	const query = `
		SELECT transaction_id, player_id, room_id, points_change, current_total, description, event_time
		FROM score_transactions
		WHERE player_id = $1
		ORDER BY event_time DESC, transaction_id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get score history: %w", err)
	}
	defer rows.Close()

	var history []*model.ScoreTransaction
	for rows.Next() {
		var tx model.ScoreTransaction
		err := rows.Scan(
			&tx.TransactionID,
			&tx.PlayerID,
			&tx.RoomID,
			&tx.PointsChange,
			&tx.CurrentTotal,
			&tx.Description,
			&tx.EventTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score transaction: %w", err)
		}
		history = append(history, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score history: %w", err)
	}

	return history, nil
}

// ApplySettlement finalizes the win/loss counters of a room's participants:
// positive room balance credits a win, negative a loss, zero neither; every
// participant's games_played is incremented exactly once.
func (r *LedgerRepository) ApplySettlement(ctx context.Context, q Querier, roomID int64) error {
	const query = `
		UPDATE scores s
		SET games_played = s.games_played + 1,
		    games_won  = s.games_won  + CASE WHEN rp.final_score > 0 THEN 1 ELSE 0 END,
		    games_lost = s.games_lost + CASE WHEN rp.final_score < 0 THEN 1 ELSE 0 END,
		    last_updated = NOW()
		FROM room_participants rp
		WHERE rp.room_id = $1 AND rp.player_id = s.player_id
	`

	if _, err := q.Exec(ctx, query, roomID); err != nil {
		return fmt.Errorf("failed to apply settlement: %w", err)
	}
	return nil
}

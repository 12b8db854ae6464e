package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"room-score-server/internal/config"
	"room-score-server/internal/model"
	"room-score-server/internal/repository"
)

// RoomService owns the room lifecycle and the point ledger. Every mutation
// runs inside one transaction; concurrent mutations on the same rows
// serialize on row locks, always acquired in ascending player_id order.
type RoomService struct {
	pool         *pgxpool.Pool
	players      *repository.PlayerRepository
	rooms        *repository.RoomRepository
	participants *repository.ParticipantRepository
	ledger       *repository.LedgerRepository
	codes        *codeGenerator

	maxPlayers      int
	minPlayers      int
	codeAttempts    int
	recentTransfers int
}

func NewRoomService(
	pool *pgxpool.Pool,
	players *repository.PlayerRepository,
	rooms *repository.RoomRepository,
	participants *repository.ParticipantRepository,
	ledger *repository.LedgerRepository,
	cfg config.RoomConfig,
) *RoomService {
	return &RoomService{
		pool:            pool,
		players:         players,
		rooms:           rooms,
		participants:    participants,
		ledger:          ledger,
		codes:           newCodeGenerator(cfg.CodeLength),
		maxPlayers:      cfg.MaxPlayers,
		minPlayers:      cfg.MinPlayers,
		codeAttempts:    cfg.CodeAttempts,
		recentTransfers: cfg.RecentTransfers,
	}
}

func (s *RoomService) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateRoom opens a new room with a freshly allocated code and seats the
// host at position 1. A unique-code collision aborts the transaction, and
// the whole creation is retried with a new candidate up to the configured
// attempt budget.
func (s *RoomService) CreateRoom(ctx context.Context, hostID string) (*model.Room, error) {
	var room *model.Room
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		code := s.codes.Next(attempt, s.codeAttempts)
		err := s.inTx(ctx, func(tx pgx.Tx) error {
			ok, err := s.players.Exists(ctx, tx, hostID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrPlayerNotFound
			}

			active, err := s.participants.HasActiveElsewhere(ctx, tx, hostID, 0)
			if err != nil {
				return err
			}
			if active {
				return ErrAlreadyInAnotherRoom
			}

			inUse, err := s.rooms.CodeInUse(ctx, tx, code)
			if err != nil {
				return err
			}
			if inUse {
				return repository.ErrCodeTaken
			}

			room, err = s.rooms.Create(ctx, tx, code, hostID, s.maxPlayers, s.minPlayers)
			if err != nil {
				return err
			}

			_, err = s.participants.Insert(ctx, tx, room.RoomID, hostID, 1)
			return err
		})
		if errors.Is(err, repository.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return room, nil
	}
	return nil, ErrCodeSpaceExhausted
}

// JoinRoom seats a player in the live room addressed by code. A returning
// player gets their previous seat and room balance back; a new player
// takes the requested seat, or the next free position when seat is zero,
// with a zero balance. Capacity and seat availability are checked under
// the room row lock, so concurrent joins cannot overfill the room.
func (s *RoomService) JoinRoom(ctx context.Context, roomCode, playerID string, seat int) (*model.Room, *model.Participant, error) {
	if seat < 0 {
		return nil, nil, ErrInvalidSeat
	}
	var (
		room *model.Room
		part *model.Participant
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		room, err = s.rooms.GetLiveByCode(ctx, tx, roomCode)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return ErrRoomNotFound
			}
			return err
		}

		ok, err := s.players.Exists(ctx, tx, playerID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPlayerNotFound
		}

		existing, err := s.participants.Get(ctx, tx, room.RoomID, playerID)
		if err != nil && !errors.Is(err, repository.ErrParticipantNotFound) {
			return err
		}
		if existing != nil && existing.Status == model.ParticipantActive {
			return ErrAlreadyJoined
		}

		active, err := s.participants.HasActiveElsewhere(ctx, tx, playerID, room.RoomID)
		if err != nil {
			return err
		}
		if active {
			return ErrAlreadyInAnotherRoom
		}

		count, err := s.participants.ActiveCount(ctx, tx, room.RoomID)
		if err != nil {
			return err
		}
		if count >= room.MaxPlayers {
			return ErrRoomFull
		}

		if existing != nil {
			part, err = s.participants.Reactivate(ctx, tx, existing.ParticipationID)
			return err
		}

		position := seat
		if position > 0 {
			if position > room.MaxPlayers {
				return ErrInvalidSeat
			}
			taken, err := s.participants.PositionTaken(ctx, tx, room.RoomID, position)
			if err != nil {
				return err
			}
			if taken {
				return ErrSeatTaken
			}
		} else {
			position, err = s.participants.NextPosition(ctx, tx, room.RoomID)
			if err != nil {
				return err
			}
		}
		part, err = s.participants.Insert(ctx, tx, room.RoomID, playerID, position)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return room, part, nil
}

// LeaveRoom marks the player's participation left. Idempotent: leaving a
// room already departed from reports no change instead of failing. The
// participation row and its balance stay behind for the room history.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID int64, playerID string) (bool, error) {
	return s.setDeparture(ctx, roomID, playerID, model.ParticipantLeft, "")
}

// KickPlayer marks the target's participation kicked. Only the room
// creator may kick. Same idempotency as LeaveRoom.
func (s *RoomService) KickPlayer(ctx context.Context, roomID int64, requesterID, targetID string) (bool, error) {
	return s.setDeparture(ctx, roomID, targetID, model.ParticipantKicked, requesterID)
}

func (s *RoomService) setDeparture(ctx context.Context, roomID int64, playerID, status, requireCreator string) (bool, error) {
	var changed bool
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		room, err := s.rooms.Get(ctx, tx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		if requireCreator != "" && room.CreatedBy != requireCreator {
			return ErrNotRoomCreator
		}
		if _, err := s.participants.Get(ctx, tx, roomID, playerID); err != nil {
			if errors.Is(err, repository.ErrParticipantNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}

		changed, err = s.participants.SetStatus(ctx, tx, roomID, playerID, status)
		return err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// TransferPoints atomically moves points from one active participant to
// another, updating both room balances and both global totals, and
// appending the transfer record plus one score transaction per side. The
// sum of room balances and the sum of transferred totals are both
// preserved: the operation either fully applies or leaves no trace.
func (s *RoomService) TransferPoints(ctx context.Context, roomID int64, fromID, toID string, points int64, description *string) (*model.TransferRecord, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromID == toID {
		return nil, ErrSelfTransfer
	}

	pair := []string{fromID, toID}
	sort.Strings(pair)

	var record *model.TransferRecord
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		room, err := s.rooms.GetForUpdate(ctx, tx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		if room.Terminal() {
			return ErrRoomClosed
		}

		parts, err := s.participants.LockPair(ctx, tx, roomID, pair)
		if err != nil {
			return err
		}
		byID := make(map[string]*model.Participant, len(parts))
		for _, p := range parts {
			byID[p.PlayerID] = p
		}
		for _, id := range pair {
			p, ok := byID[id]
			if !ok || p.Status != model.ParticipantActive {
				return ErrNotActiveParticipant
			}
		}

		if err := s.participants.AddToFinalScore(ctx, tx, roomID, fromID, -points); err != nil {
			return err
		}
		if err := s.participants.AddToFinalScore(ctx, tx, roomID, toID, points); err != nil {
			return err
		}

		if err := s.ledger.EnsureScoreRows(ctx, tx, pair); err != nil {
			return err
		}
		totals, err := s.ledger.LockTotals(ctx, tx, pair)
		if err != nil {
			return err
		}
		if err := s.ledger.SetTotal(ctx, tx, fromID, totals[fromID]-points); err != nil {
			return err
		}
		if err := s.ledger.SetTotal(ctx, tx, toID, totals[toID]+points); err != nil {
			return err
		}
		if _, err := s.ledger.InsertScoreTransaction(ctx, tx, fromID, &roomID, -points, totals[fromID]-points, description); err != nil {
			return err
		}
		if _, err := s.ledger.InsertScoreTransaction(ctx, tx, toID, &roomID, points, totals[toID]+points, description); err != nil {
			return err
		}

		record, err = s.ledger.InsertTransfer(ctx, tx, fromID, toID, points, roomID, description)
		if err != nil {
			return err
		}

		if room.Status == model.RoomWaiting {
			return s.rooms.MarkPlaying(ctx, tx, roomID)
		}
		return s.rooms.Touch(ctx, tx, roomID)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// EndRoom finishes a room: every participant's win/loss counters settle
// against the sign of their room balance, all active participants are
// marked left, and the room becomes terminal. Ending an already terminal
// room fails; the first caller to take the room lock wins.
func (s *RoomService) EndRoom(ctx context.Context, roomID int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		room, err := s.rooms.GetForUpdate(ctx, tx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		if room.Terminal() {
			return ErrRoomClosed
		}
		return s.endLocked(ctx, tx, roomID)
	})
}

// EndRoomBy is EndRoom gated on the requester being a participant of the
// room.
func (s *RoomService) EndRoomBy(ctx context.Context, roomID int64, requesterID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		room, err := s.rooms.GetForUpdate(ctx, tx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		if room.Terminal() {
			return ErrRoomClosed
		}
		if _, err := s.participants.Get(ctx, tx, roomID, requesterID); err != nil {
			if errors.Is(err, repository.ErrParticipantNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}
		return s.endLocked(ctx, tx, roomID)
	})
}

func (s *RoomService) endLocked(ctx context.Context, tx pgx.Tx, roomID int64) error {
	parts, err := s.participants.ListForSettlement(ctx, tx, roomID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.PlayerID)
	}
	if err := s.ledger.EnsureScoreRows(ctx, tx, ids); err != nil {
		return err
	}
	if err := s.ledger.ApplySettlement(ctx, tx, roomID); err != nil {
		return err
	}

	if err := s.participants.MarkAllLeft(ctx, tx, roomID); err != nil {
		return err
	}
	return s.rooms.Finish(ctx, tx, roomID)
}

// RoomDetail returns a whole-state snapshot of the room: participants in
// seat order with current balances, plus the most recent transfers. The
// reads share one repeatable-read transaction, so the snapshot is
// internally consistent.
func (s *RoomService) RoomDetail(ctx context.Context, roomID int64) (*model.RoomDetail, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	room, err := s.rooms.Get(ctx, tx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	players, err := s.participants.ListByRoom(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	transfers, err := s.ledger.RecentByRoom(ctx, tx, roomID, s.recentTransfers)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	return &model.RoomDetail{
		RoomID:     room.RoomID,
		RoomCode:   room.RoomCode,
		Status:     room.Status,
		MaxPlayers: room.MaxPlayers,
		MinPlayers: room.MinPlayers,
		CreatedBy:  room.CreatedBy,
		CreatedAt:  room.CreatedAt,
		EndTime:    room.EndTime,
		Players:    players,
		Transfers:  transfers,
	}, nil
}

// RoomsForPlayer lists the rooms the player has participated in, newest
// first.
func (s *RoomService) RoomsForPlayer(ctx context.Context, playerID string) ([]*model.Room, error) {
	return s.rooms.ListByPlayer(ctx, playerID)
}

// FindIdleRooms returns live rooms whose last activity is older than
// idleFor, for the background reaper.
func (s *RoomService) FindIdleRooms(ctx context.Context, idleFor time.Duration) ([]int64, error) {
	return s.rooms.FindIdle(ctx, idleFor)
}

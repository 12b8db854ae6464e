package service

import (
	"context"
	"errors"

	"room-score-server/internal/model"
	"room-score-server/internal/repository"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
	profileHistorySize     = 10
)

// PlayerService covers identity and the global score surface: login
// upserts, profiles, history and the leaderboard.
type PlayerService struct {
	players *repository.PlayerRepository
	ledger  *repository.LedgerRepository
}

func NewPlayerService(players *repository.PlayerRepository, ledger *repository.LedgerRepository) *PlayerService {
	return &PlayerService{players: players, ledger: ledger}
}

// Login registers the player on first sight and refreshes display fields
// on every later call. A zero score row is created alongside a new player.
func (s *PlayerService) Login(ctx context.Context, playerID, username, avatarURL string) (*model.Player, error) {
	return s.players.Upsert(ctx, playerID, username, avatarURL)
}

// Profile returns the player with their aggregate score and recent global
// ledger history.
func (s *PlayerService) Profile(ctx context.Context, playerID string) (*model.PlayerProfile, error) {
	player, err := s.players.GetByID(ctx, playerID)
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}
	score, err := s.players.GetScore(ctx, playerID)
	if err != nil {
		return nil, err
	}
	history, err := s.ledger.HistoryByPlayer(ctx, playerID, profileHistorySize)
	if err != nil {
		return nil, err
	}
	return &model.PlayerProfile{
		Player:             player,
		Score:              score,
		RecentTransactions: history,
	}, nil
}

// Leaderboard returns the top players by global total. The limit is
// clamped to a sane range.
func (s *PlayerService) Leaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}
	return s.players.GetLeaderboard(ctx, limit)
}

// ScoreHistory returns the player's recent global ledger entries, newest
// first.
func (s *PlayerService) ScoreHistory(ctx context.Context, playerID string, limit int) ([]*model.ScoreTransaction, error) {
	if limit <= 0 {
		limit = profileHistorySize
	}
	return s.ledger.HistoryByPlayer(ctx, playerID, limit)
}

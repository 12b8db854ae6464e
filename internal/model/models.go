// Package model defines the data models for the room score server.
package model

import "time"

// Player is a registered player. Players are created on first login and are
// never deleted.
type Player struct {
	PlayerID  string    `db:"player_id"`
	Username  string    `db:"username"`
	AvatarURL string    `db:"avatar_url"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Score is a player's global aggregate: the running point total across all
// rooms plus win/loss counters finalized when rooms end.
type Score struct {
	PlayerID     string    `db:"player_id"`
	CurrentTotal int64     `db:"current_total"`
	GamesPlayed  int       `db:"games_played"`
	GamesWon     int       `db:"games_won"`
	GamesLost    int       `db:"games_lost"`
	LastUpdated  time.Time `db:"last_updated"`
}

// Room statuses. A room is terminal once finished or cancelled and is never
// mutated again.
const (
	RoomWaiting   = "waiting"
	RoomPlaying   = "playing"
	RoomFinished  = "finished"
	RoomCancelled = "cancelled"
)

// Room is a bounded-lifetime grouping of players sharing one point ledger,
// addressed by a short human-shareable code while live.
type Room struct {
	RoomID     int64      `db:"room_id"`
	RoomCode   string     `db:"room_code"`
	Status     string     `db:"status"`
	MaxPlayers int        `db:"max_players"`
	MinPlayers int        `db:"min_players"`
	CreatedBy  string     `db:"created_by"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
	EndTime    *time.Time `db:"end_time"`
}

// Terminal reports whether the room can no longer accept mutations.
func (r *Room) Terminal() bool {
	return TerminalStatus(r.Status)
}

// TerminalStatus reports whether a room status is terminal.
func TerminalStatus(status string) bool {
	return status == RoomFinished || status == RoomCancelled
}

// Participant statuses. Departures transition the status instead of deleting
// the row, so the room history survives.
const (
	ParticipantActive       = "active"
	ParticipantLeft         = "left"
	ParticipantKicked       = "kicked"
	ParticipantDisconnected = "disconnected"
)

// Participant is a player's membership in one room, carrying the room-scoped
// running balance (FinalScore). Only transfers within the room move it.
type Participant struct {
	ParticipationID int64      `db:"participation_id"`
	RoomID          int64      `db:"room_id"`
	PlayerID        string     `db:"player_id"`
	InitialScore    int64      `db:"initial_score"`
	FinalScore      int64      `db:"final_score"`
	Position        int        `db:"position"`
	Status          string     `db:"status"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	LeftAt          *time.Time `db:"left_at"`
}

// TransferRecord is the immutable audit row of one point movement between two
// players of a room. Append-only.
type TransferRecord struct {
	TransferID   int64     `db:"transfer_id"`
	FromPlayerID string    `db:"from_player_id"`
	ToPlayerID   string    `db:"to_player_id"`
	Points       int64     `db:"points"`
	RoomID       int64     `db:"room_id"`
	Description  *string   `db:"description"`
	CreatedAt    time.Time `db:"created_at"`
}

// ScoreTransaction is the immutable audit row of one change to a player's
// global aggregate total, capturing the resulting running total at write
// time. Append-only; enables replay and audit.
type ScoreTransaction struct {
	TransactionID int64     `db:"transaction_id" json:"transactionId"`
	PlayerID      string    `db:"player_id" json:"playerId"`
	RoomID        *int64    `db:"room_id" json:"roomId,omitempty"`
	PointsChange  int64     `db:"points_change" json:"pointsChange"`
	CurrentTotal  int64     `db:"current_total" json:"currentTotal"`
	Description   *string   `db:"description" json:"description,omitempty"`
	EventTime     time.Time `db:"event_time" json:"eventTime"`
}

// RoomParticipantView is a participant joined with player display data, as
// exposed in room snapshots.
type RoomParticipantView struct {
	ParticipationID int64  `json:"participationId"`
	PlayerID        string `json:"playerId"`
	Username        string `json:"username"`
	AvatarURL       string `json:"avatarUrl"`
	Position        int    `json:"position"`
	Status          string `json:"status"`
	Balance         int64  `json:"balance"`
}

// RoomDetail is a full, consistent snapshot of a room: participants with
// current balances plus recent transfer records. Snapshots are whole-state,
// never incremental, so a client that missed updates self-heals on the next
// one it receives.
type RoomDetail struct {
	RoomID     int64                  `json:"roomId"`
	RoomCode   string                 `json:"roomCode"`
	Status     string                 `json:"status"`
	MaxPlayers int                    `json:"maxPlayers"`
	MinPlayers int                    `json:"minPlayers"`
	CreatedBy  string                 `json:"createdBy"`
	CreatedAt  time.Time              `json:"createdAt"`
	EndTime    *time.Time             `json:"endTime,omitempty"`
	Players    []*RoomParticipantView `json:"participants"`
	Transfers  []*TransferRecordView  `json:"transfers"`
}

// TransferRecordView is a transfer record as exposed in room snapshots.
type TransferRecordView struct {
	TransferID  int64     `json:"transferId"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Points      int64     `json:"points"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LeaderboardEntry is one row of the global score leaderboard.
type LeaderboardEntry struct {
	Rank         int    `json:"rank"`
	PlayerID     string `json:"playerId"`
	Username     string `json:"username"`
	CurrentTotal int64  `json:"score"`
}

// PlayerProfile bundles a player with their aggregate score and recent global
// ledger history.
type PlayerProfile struct {
	Player             *Player             `json:"player"`
	Score              *Score              `json:"score"`
	RecentTransactions []*ScoreTransaction `json:"recentTransactions"`
}

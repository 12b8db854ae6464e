// Package service implements the room ledger operations on top of the
// repository layer. All multi-row mutations run inside a single pgx
// transaction with row locks taken in a deterministic order.
package service

import "errors"

var (
	ErrInvalidAmount = errors.New("transfer amount must be a positive integer")
	ErrSelfTransfer  = errors.New("sender and recipient must differ")
	ErrInvalidSeat   = errors.New("seat position is out of range")

	ErrPlayerNotFound      = errors.New("player not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("player is not a participant of this room")

	ErrRoomClosed           = errors.New("room is already finished or cancelled")
	ErrRoomFull             = errors.New("room is full")
	ErrSeatTaken            = errors.New("seat position is already taken")
	ErrAlreadyJoined        = errors.New("player is already active in this room")
	ErrAlreadyInAnotherRoom = errors.New("player is already active in another room")
	ErrNotActiveParticipant = errors.New("player is not an active participant of this room")
	ErrNotRoomCreator       = errors.New("only the room creator may do this")

	ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")
)

// Kind buckets service errors for transport-level mapping. Handlers
// translate kinds to HTTP status codes without inspecting individual
// sentinel errors.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindState
	KindNotFound
)

// Classify returns the Kind of err. Unknown errors are internal.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrInvalidSeat):
		return KindValidation
	case errors.Is(err, ErrPlayerNotFound),
		errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrParticipantNotFound):
		return KindNotFound
	case errors.Is(err, ErrRoomClosed),
		errors.Is(err, ErrRoomFull),
		errors.Is(err, ErrSeatTaken),
		errors.Is(err, ErrAlreadyJoined),
		errors.Is(err, ErrAlreadyInAnotherRoom),
		errors.Is(err, ErrNotActiveParticipant),
		errors.Is(err, ErrNotRoomCreator):
		return KindState
	default:
		return KindInternal
	}
}

package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"room-score-server/internal/service"
)

// Notifier pushes a fresh room snapshot to websocket subscribers after a
// committed mutation.
type Notifier interface {
	RoomUpdated(ctx context.Context, roomID int64, event string)
}

// RoomHandler serves the room lifecycle and transfer endpoints. Every
// mutation that succeeds is followed by a snapshot broadcast.
type RoomHandler struct {
	rooms    *service.RoomService
	notifier Notifier
	log      zerolog.Logger
}

func NewRoomHandler(rooms *service.RoomService, notifier Notifier, log zerolog.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, notifier: notifier, log: log}
}

// Create opens a new room with the caller as host.
func (h *RoomHandler) Create(c *gin.Context) {
	room, err := h.rooms.CreateRoom(c.Request.Context(), currentPlayer(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"roomId":   room.RoomID,
		"roomCode": room.RoomCode,
		"status":   room.Status,
	})
}

type joinRequest struct {
	RoomCode string `json:"roomCode" binding:"required"`
	Seat     int    `json:"seat"`
}

// Join seats the caller in the live room addressed by code. Seat is
// optional; zero means the next free position.
func (h *RoomHandler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "roomCode is required", Code: "validation"})
		return
	}

	room, part, err := h.rooms.JoinRoom(c.Request.Context(), req.RoomCode, currentPlayer(c), req.Seat)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.notifier.RoomUpdated(c.Request.Context(), room.RoomID, "player-joined")

	c.JSON(http.StatusOK, gin.H{
		"roomId":   room.RoomID,
		"roomCode": room.RoomCode,
		"position": part.Position,
		"balance":  part.FinalScore,
	})
}

// Detail returns a whole-state snapshot of the room.
func (h *RoomHandler) Detail(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	detail, err := h.rooms.RoomDetail(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// List returns the caller's rooms, newest first.
func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.rooms.RoomsForPlayer(c.Request.Context(), currentPlayer(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// Leave marks the caller departed from the room.
func (h *RoomHandler) Leave(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	changed, err := h.rooms.LeaveRoom(c.Request.Context(), roomID, currentPlayer(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if changed {
		h.notifier.RoomUpdated(c.Request.Context(), roomID, "player-left")
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

type kickRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

// Kick removes another player from the room. Creator only.
func (h *RoomHandler) Kick(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	var req kickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "playerId is required", Code: "validation"})
		return
	}

	changed, err := h.rooms.KickPlayer(c.Request.Context(), roomID, currentPlayer(c), req.PlayerID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if changed {
		h.notifier.RoomUpdated(c.Request.Context(), roomID, "player-kicked")
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

type transferRequest struct {
	ToPlayerID  string `json:"toPlayerId" binding:"required"`
	Points      int64  `json:"points" binding:"required"`
	Description string `json:"description"`
}

// Transfer moves points from the caller to another participant.
func (h *RoomHandler) Transfer(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "toPlayerId and points are required", Code: "validation"})
		return
	}

	var desc *string
	if req.Description != "" {
		desc = &req.Description
	}
	record, err := h.rooms.TransferPoints(c.Request.Context(), roomID, currentPlayer(c), req.ToPlayerID, req.Points, desc)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.notifier.RoomUpdated(c.Request.Context(), roomID, "transfer")

	c.JSON(http.StatusOK, gin.H{
		"transferId": record.TransferID,
		"from":       record.FromPlayerID,
		"to":         record.ToPlayerID,
		"points":     record.Points,
		"createdAt":  record.CreatedAt,
	})
}

// End finishes the room and settles win/loss counters. Any participant
// may end the room.
func (h *RoomHandler) End(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if err := h.rooms.EndRoomBy(c.Request.Context(), roomID, currentPlayer(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.notifier.RoomUpdated(c.Request.Context(), roomID, "room-ended")
	c.JSON(http.StatusOK, gin.H{"status": "finished"})
}

func roomIDParam(c *gin.Context) (int64, bool) {
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid room id", Code: "validation"})
		return 0, false
	}
	return roomID, true
}

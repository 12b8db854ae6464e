package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"room-score-server/internal/service"
)

// TokenIssuer mints session tokens after a successful login.
type TokenIssuer interface {
	Generate(playerID string) (string, error)
}

// PlayerHandler serves identity and global score endpoints.
type PlayerHandler struct {
	players *service.PlayerService
	tokens  TokenIssuer
	log     zerolog.Logger
}

func NewPlayerHandler(players *service.PlayerService, tokens TokenIssuer, log zerolog.Logger) *PlayerHandler {
	return &PlayerHandler{players: players, tokens: tokens, log: log}
}

type loginRequest struct {
	PlayerID  string `json:"playerId" binding:"required"`
	Username  string `json:"username" binding:"required"`
	AvatarURL string `json:"avatarUrl"`
}

// Login upserts the player and returns a session token. The identity
// itself is vouched for upstream; this endpoint trusts the gateway.
func (h *PlayerHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "playerId and username are required", Code: "validation"})
		return
	}

	player, err := h.players.Login(c.Request.Context(), req.PlayerID, req.Username, req.AvatarURL)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	token, err := h.tokens.Generate(player.PlayerID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"player": gin.H{
			"playerId":  player.PlayerID,
			"username":  player.Username,
			"avatarUrl": player.AvatarURL,
		},
	})
}

// Profile returns the authenticated player's profile with score and
// recent ledger history.
func (h *PlayerHandler) Profile(c *gin.Context) {
	profile, err := h.players.Profile(c.Request.Context(), currentPlayer(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Leaderboard returns the top players by global total.
func (h *PlayerHandler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	entries, err := h.players.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// History returns the authenticated player's recent score transactions.
func (h *PlayerHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	history, err := h.players.ScoreHistory(c.Request.Context(), currentPlayer(c), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": history})
}

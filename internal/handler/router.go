package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Router wires the API surface: public login and leaderboard, an
// authenticated room and player API, and the websocket endpoint.
func Router(
	players *PlayerHandler,
	rooms *RoomHandler,
	ws *WSHandler,
	verifier TokenVerifier,
	allowedOrigins []string,
	log zerolog.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	api.POST("/login", players.Login)
	api.GET("/leaderboard", players.Leaderboard)

	authed := api.Group("", Auth(verifier))
	authed.GET("/profile", players.Profile)
	authed.GET("/transactions", players.History)

	authed.POST("/rooms", rooms.Create)
	authed.GET("/rooms", rooms.List)
	authed.POST("/rooms/join", rooms.Join)
	authed.GET("/rooms/:id", rooms.Detail)
	authed.POST("/rooms/:id/leave", rooms.Leave)
	authed.POST("/rooms/:id/kick", rooms.Kick)
	authed.POST("/rooms/:id/transfer", rooms.Transfer)
	authed.POST("/rooms/:id/end", rooms.End)

	r.GET("/ws", ws.Serve)

	return r
}

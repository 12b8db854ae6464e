// Package main is the entry point for the room score server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"room-score-server/internal/auth"
	"room-score-server/internal/config"
	"room-score-server/internal/handler"
	"room-score-server/internal/hub"
	"room-score-server/internal/notify"
	"room-score-server/internal/pkg/db"
	"room-score-server/internal/reaper"
	"room-score-server/internal/repository"
	"room-score-server/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories
	playerRepo := repository.NewPlayerRepository(dbPool.Pool)
	roomRepo := repository.NewRoomRepository(dbPool.Pool)
	participantRepo := repository.NewParticipantRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)

	// Services
	roomService := service.NewRoomService(dbPool.Pool, playerRepo, roomRepo, participantRepo, ledgerRepo, cfg.Room)
	playerService := service.NewPlayerService(playerRepo, ledgerRepo)

	tokens := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	// Websocket fan-out
	connHub := hub.New(log.Logger)
	bridge := notify.NewBridge(roomService, connHub, log.Logger)

	// Idle room reaper
	roomReaper := reaper.New(roomService, bridge, cfg.Reaper, log.Logger)
	if err := roomReaper.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start reaper")
	}
	defer roomReaper.Stop()

	// HTTP surface
	playerHandler := handler.NewPlayerHandler(playerService, tokens, log.Logger)
	roomHandler := handler.NewRoomHandler(roomService, bridge, log.Logger)
	wsHandler := handler.NewWSHandler(connHub, roomService, tokens, cfg.Server.AllowedOrigins, log.Logger)

	router := handler.Router(playerHandler, roomHandler, wsHandler, tokens, cfg.Server.AllowedOrigins, log.Logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	router "github.com/dkeye/WatchParty/internal/adapters/http"
	wsignal "github.com/dkeye/WatchParty/internal/adapters/signal"
	"github.com/dkeye/WatchParty/internal/app"
	"github.com/dkeye/WatchParty/internal/app/orch"
	"github.com/dkeye/WatchParty/internal/auth"
	"github.com/dkeye/WatchParty/internal/config"
	"github.com/dkeye/WatchParty/internal/logging"
	"github.com/dkeye/WatchParty/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Early logger so config.Load can report; replaced once config is read.
	logging.Init(config.LogConfig{Level: "info", Pretty: true})

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	logging.Init(cfg.Log)

	stores, err := store.Open(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open stores")
		os.Exit(1)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error().Err(err).Msg("close stores")
		}
	}()

	rooms := app.NewRooms(stores.Rooms, cfg.Room.CodeRetries)
	chatLimit := wsignal.NewRoomRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateWindow)
	createLimit := wsignal.NewRoomRateLimiter(cfg.Room.CreateLimit, cfg.Room.CreateWindow)

	var policy app.Policy = app.SimplePolicy{}
	if cfg.Room.Backpressure == "drop" {
		policy = app.TolerantPolicy{}
	}

	o := &orch.Orchestrator{
		Registry:    app.NewRegistry(),
		Groups:      app.NewRoomManager(),
		Rooms:       rooms,
		Chat:        stores.Chat,
		Policy:      policy,
		ChatLimit:   chatLimit,
		AwayGrace:   cfg.Room.AwayGrace,
		IdleTTL:     cfg.Room.IdleTTL,
		HistorySize: cfg.Chat.HistorySize,
	}

	ctl := wsignal.NewSignalWSController(ctx, o, wsignal.Options{
		ReadLimit:  cfg.WebSocket.ReadLimit,
		PingPeriod: cfg.WebSocket.PingPeriod,
		PongWait:   cfg.WebSocket.PongWait,
		WriteWait:  cfg.WebSocket.WriteWait,
		SendBuffer: cfg.WebSocket.SendBuffer,
	})
	ctl.CreateLimit = createLimit

	authn := app.NewAuthenticator(auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), cfg.Auth.Timeout)
	r := router.SetupRouter(cfg, &router.Server{Orch: o, Auth: authn, Controller: ctl})

	go o.RunSweeper(ctx, cfg.Room.SweepInterval, chatLimit.Prune, createLimit.Prune)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("WatchParty server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

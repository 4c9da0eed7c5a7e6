package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Excellence-arch/anonchat-go/internal/config"
	"github.com/Excellence-arch/anonchat-go/internal/engine"
	pkgconfig "github.com/Excellence-arch/anonchat-go/pkg/config"
	"github.com/Excellence-arch/anonchat-go/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	log.Init(cfg.Log)
	logger := log.L()

	credential := pkgconfig.GetEnv("ANONCHAT_TOKEN", "")
	if credential == "" {
		logger.Fatal().Msg("ANONCHAT_TOKEN is not set")
	}

	eng, err := engine.New(cfg, credential, engine.WithUnauthorizedHook(func() {
		logger.Error().Msg("session rejected, exiting")
		os.Exit(1)
	}))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start engine")
	}
	defer eng.Stop()

	logger.Info().
		Str(log.FieldUserID, eng.LocalUser().ID).
		Str("ws_url", cfg.WebSocket.URL).
		Msg("engine started")

	// Log store activity until interrupted.
	go func() {
		updates := eng.Updates()
		for range updates {
			st := eng.Store()
			logger.Debug().
				Int("conversations", len(st.Conversations())).
				Int("messages", len(st.Messages())).
				Str(log.FieldStatus, st.ConnectionStatus().String()).
				Msg("store updated")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
}

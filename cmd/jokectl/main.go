package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/dafibh/jokebox/jokebox-backend/internal/client"
	"github.com/dafibh/jokebox/jokebox-backend/internal/config"
	"github.com/dafibh/jokebox/jokebox-backend/internal/console"
	"github.com/dafibh/jokebox/jokebox-backend/internal/domain"
	"github.com/dafibh/jokebox/jokebox-backend/internal/reconcile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog on stderr so it stays out of the console output
	zerolog.SetGlobalLevel(cfg.LogLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.Env != "production" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []client.Option{
		client.WithClientID(cfg.ClientID),
		client.WithWebSocketURL(cfg.WSURL),
	}
	if cfg.Token != "" {
		opts = append(opts, client.WithToken(cfg.Token))
	}
	api := client.New(cfg.APIURL, opts...)

	store := reconcile.NewItemStore()
	active := reconcile.NewList(api, store, domain.JokeFilter{Deleted: false}, cfg.PageSize, logger)
	trash := reconcile.NewList(api, store, domain.JokeFilter{Deleted: true}, cfg.PageSize, logger)
	views := reconcile.Views{Active: active, Trash: trash}
	coordinator := reconcile.NewCoordinator(api, store, views, logger)

	syncer := reconcile.NewSyncer(api, store, views, logger, reconcile.DefaultSyncerConfig())
	syncer.Start(ctx)
	defer syncer.Stop()

	term := console.New(os.Stdin, os.Stdout, console.Deps{
		Store:       store,
		Active:      active,
		Trash:       trash,
		Coordinator: coordinator,
		History:     reconcile.NewHistory(api, logger),
	}, logger)
	coordinator.SetNotifier(term)
	coordinator.SetConfirmer(term)

	logger.Info().
		Str("api_url", cfg.APIURL).
		Str("client_id", cfg.ClientID.String()).
		Msg("Starting jokectl")

	if err := term.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Console stopped")
		syncer.Stop()
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cowly/internal/util"
	"cowly/pkg/events"
	"cowly/services/ingest/internal/app"
	"cowly/services/ingest/internal/config"
	"cowly/services/ingest/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	interval, err := config.ParseDuration("pollInterval", cfg.PollInterval)
	if err != nil {
		log.Fatalf("failed to parse poll interval: %v", err)
	}
	timeout, err := config.ParseDuration("requestTimeout", cfg.RequestTimeout)
	if err != nil {
		log.Fatalf("failed to parse request timeout: %v", err)
	}

	logger, closeLogs := util.InitLogger(cfg.LogLevel, "ingest", cfg.LogsDir)
	defer closeLogs()

	var publisher app.Publisher
	if cfg.RedisAddr != "" {
		bus, err := events.NewRedisBus(events.RedisBusConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Channel:  cfg.EventsChannel,
		})
		if err != nil {
			log.Fatalf("failed to init event bus: %v", err)
		}
		defer bus.Close()
		publisher = bus
	}

	feeds := make([]app.Feed, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		feeds = append(feeds, app.Feed{ChannelID: f.ChannelID, APIKey: f.APIKey, UserID: f.UserID, CowID: f.CowID})
	}
	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		ThingSpeakURL:  cfg.ThingSpeakURL,
		Publisher:      publisher,
		Feeds:          feeds,
		Interval:       interval,
		Concurrency:    cfg.PollConcurrency,
		RequestTimeout: timeout,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := appCore.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("poller stopped", "err", err)
		}
	}()

	httpServer := server.New(server.Config{
		App:          appCore,
		ControlToken: cfg.ControlToken,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "err", err)
		}
	}()

	slog.Info("ingest server listening", "addr", addr, "feeds", len(feeds))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

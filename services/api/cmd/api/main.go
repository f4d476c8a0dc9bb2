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
	"cowly/pkg/storage"
	"cowly/services/api/internal/app"
	"cowly/services/api/internal/config"
	"cowly/services/api/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	jwtLeeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	modelTimeout, err := config.ParseDuration("modelTimeout", cfg.ModelTimeout)
	if err != nil {
		log.Fatalf("failed to parse model timeout: %v", err)
	}

	logger, closeLogs := util.InitLogger(cfg.LogLevel, "api", cfg.LogsDir)
	defer closeLogs()

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	artifacts, err := artifactStore(cfg)
	if err != nil {
		log.Fatalf("failed to init artifact store: %v", err)
	}

	appCore, err := app.New(app.Config{
		StoreDriver:     cfg.StoreDriver,
		DatabaseURL:     cfg.DatabaseURL,
		RedisAddr:       cfg.RedisAddr,
		RedisPassword:   cfg.RedisPassword,
		JWTSecret:       cfg.JWTSecret,
		JWTIssuer:       cfg.JWTIssuer,
		JWTAudience:     cfg.JWTAudience,
		JWTLeeway:       jwtLeeway,
		SessionTTL:      sessionTTL,
		DiseaseModelURL: cfg.DiseaseModelURL,
		MilkModelURL:    cfg.MilkModelURL,
		ModelTimeout:    modelTimeout,
		Artifacts:       artifacts,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(cfg.AllowedOrigins)
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
		sub, err := bus.Subscribe(ctx)
		if err != nil {
			log.Fatalf("failed to subscribe to reading events: %v", err)
		}
		defer sub.Close()
		go func() {
			if err := hub.Run(ctx, sub); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("reading event subscription stopped", "err", err)
			}
		}()
	} else {
		logger.Warn("redisAddr not set; live feed receives no events and rate limiting is off")
	}

	httpServer, err := server.New(server.Config{
		App:                     appCore,
		Hub:                     hub,
		AllowedOrigins:          cfg.AllowedOrigins,
		TrustedProxies:          trusted,
		RedisAddr:               cfg.RedisAddr,
		RedisPassword:           cfg.RedisPassword,
		RegisterRateLimitPerMin: cfg.RegisterRateLimitPerMin,
		LoginRateLimitPerMin:    cfg.LoginRateLimitPerMin,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	defer httpServer.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
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

	slog.Info("api server listening", "addr", addr, "store", cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// artifactStore picks MinIO when configured, else the local directory.
func artifactStore(cfg config.FileConfig) (storage.ObjectStore, error) {
	switch {
	case cfg.MinioEndpoint != "":
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioPrefix, cfg.MinioUseSSL)
	case cfg.ArtifactsDir != "":
		return storage.NewDirStore(cfg.ArtifactsDir)
	default:
		return nil, nil
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notes-bin/pictureteam/internal/api"
	"github.com/notes-bin/pictureteam/internal/auth"
	"github.com/notes-bin/pictureteam/internal/cache"
	"github.com/notes-bin/pictureteam/internal/category"
	"github.com/notes-bin/pictureteam/internal/config"
	"github.com/notes-bin/pictureteam/internal/db"
	"github.com/notes-bin/pictureteam/internal/image"
	"github.com/notes-bin/pictureteam/internal/rating"
	"github.com/notes-bin/pictureteam/internal/redis"
	"github.com/notes-bin/pictureteam/internal/storage"
)

func configPath() string {
	if p := os.Getenv("PT_CONFIG"); p != "" {
		return p
	}
	return "config/config.json"
}

func newLogger(jsonOutput bool) *slog.Logger {
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func newBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3(ctx, storage.S3Options{
			Bucket:          cfg.Storage.Bucket,
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
		})
	case "gcs":
		return storage.NewGCS(ctx, cfg.Storage.Bucket)
	default:
		return storage.NewLocal(cfg.ImageStoragePath)
	}
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := db.Open(ctx, db.Options{
		Driver:         cfg.Database.Driver,
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		AcquireTimeout: cfg.AcquireTimeout(),
	})
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	blobs, err := newBackend(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	if gcs, ok := blobs.(*storage.GCS); ok {
		defer gcs.Close()
	}

	tokens := auth.NewTokens(cfg.TokenSecret, cfg.TokenLifetime())
	users := auth.NewAuth(store, auth.NewHasher(), tokens, logger)
	ratings := rating.NewAggregator(store, logger)

	if cfg.Redis.Addr != "" {
		redisClient, err := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		ratings.WithCache(redisClient, time.Duration(cfg.Redis.CacheTTL)*time.Second)
		go cache.StartTopRatedRefresh(ctx, store, redisClient, time.Duration(cfg.TopRefreshInterval)*time.Second)
	}

	h := api.NewHandler(cfg, tokens, users,
		category.NewLedger(store, logger),
		image.NewManager(store, blobs, logger),
		ratings)

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: api.SetupRouter(h),
	}
	go func() {
		slog.Info("Server starting", "addr", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}

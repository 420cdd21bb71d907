package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/training-engine/internal/api"
	"github.com/terra-clan/training-engine/internal/blob"
	"github.com/terra-clan/training-engine/internal/certificates"
	"github.com/terra-clan/training-engine/internal/certtmpl"
	"github.com/terra-clan/training-engine/internal/chat"
	"github.com/terra-clan/training-engine/internal/config"
	"github.com/terra-clan/training-engine/internal/enrollment"
	"github.com/terra-clan/training-engine/internal/learning"
	"github.com/terra-clan/training-engine/internal/reconcile"
	"github.com/terra-clan/training-engine/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting training-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Run database migrations
	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected successfully")

	// Connect redis (typing indicator store)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(initCtx).Err(); err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.Info("redis connected successfully")

	// Load certificate templates
	tmplLoader := certtmpl.NewLoader()
	if err := tmplLoader.LoadFromDir(cfg.Certificates.TemplatesDir); err != nil {
		slog.Warn("failed to load certificate templates from dir", "dir", cfg.Certificates.TemplatesDir, "error", err)
	}
	renderer := certtmpl.NewRenderer(tmplLoader, cfg.Certificates.Template)

	// Blob host client for certificate files
	blobClient := blob.NewClient(cfg.Blob.Endpoint, cfg.Blob.APIKey)

	// Domain services
	enrollmentSvc := enrollment.NewService(repo)
	learningSvc := learning.NewService(repo)
	certEngine := certificates.NewEngine(repo, renderer, blobClient)

	// Chat coordinator
	typingTracker := chat.NewTypingTracker(redisClient, cfg.Chat.TypingTTL, cfg.Chat.TypingThrottle)
	chatHub := chat.NewHub(repo, typingTracker, cfg.Chat)

	// Counter reconciliation worker
	reconciler, err := reconcile.New(cfg.Database.DSN, cfg.Reconcile.Interval)
	if err != nil {
		slog.Error("failed to create reconcile worker", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start reconciliation worker
	reconciler.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, repo, enrollmentSvc, learningSvc, certEngine, chatHub)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := reconciler.Close(); err != nil {
		slog.Error("reconcile worker close error", "error", err)
	}

	if err := redisClient.Close(); err != nil {
		slog.Error("redis close error", "error", err)
	}

	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("training-engine stopped")
}

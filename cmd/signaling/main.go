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

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/p2p-signaling/config"
	"github.com/mossy-p/p2p-signaling/internal/handlers"
	"github.com/mossy-p/p2p-signaling/internal/logging"
	"github.com/mossy-p/p2p-signaling/internal/redis"
	"github.com/mossy-p/p2p-signaling/internal/registry"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := handlers.Deps{Config: cfg, Logger: logger}

	var presence registry.Presence
	if cfg.Redis.Enabled {
		store, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer store.Close()

		if err := store.Reset(ctx); err != nil {
			logger.Warn("Failed to clear stale presence", zap.Error(err))
		}
		logger.Info("Redis presence mirror enabled",
			zap.String("addr", cfg.Redis.Host+":"+cfg.Redis.Port))
		presence = store
		deps.Presence = store
	}

	deps.Registry = registry.New(logger, presence)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(ctx, deps)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	// Start server
	logger.Info("Starting signaling server", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

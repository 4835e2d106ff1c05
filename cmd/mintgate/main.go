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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ipforge/mintgate/internal/api"
	"github.com/ipforge/mintgate/internal/auth"
	"github.com/ipforge/mintgate/internal/chain"
	"github.com/ipforge/mintgate/internal/config"
	"github.com/ipforge/mintgate/internal/events"
	"github.com/ipforge/mintgate/internal/mint"
	"github.com/ipforge/mintgate/internal/sigledger"
	"github.com/ipforge/mintgate/internal/stage"
	"github.com/ipforge/mintgate/internal/supply"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Chain collaborators (collection, IP registry, licensing) ──────────────
	onchain, err := chain.NewClient(cfg)
	if err != nil {
		log.Fatal("chain client init failed", zap.Error(err))
	}

	// ── Ledgers + engine ──────────────────────────────────────────────────────
	registry := stage.NewRegistry(rdb)
	if err := registry.SeedMaxSupply(ctx, cfg.Mint.MaxSupply); err != nil {
		log.Fatal("seed max supply failed", zap.Error(err))
	}
	settings := mint.NewSettings(rdb)
	if err := settings.Seed(ctx, cfg); err != nil {
		log.Fatal("seed settings failed", zap.Error(err))
	}

	engine := mint.NewEngine(
		rdb,
		registry,
		sigledger.NewLedger(rdb),
		supply.NewLedger(rdb),
		settings,
		onchain,
		onchain,
		events.NewEmitter(rdb, log),
		onchain.ChainID(),
		onchain.CollectionAddress(),
		cfg.Mint.MetadataBaseURI,
		log,
	)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	apiGroup := r.Group("/api", auth.Middleware(rdb))
	api.NewHandler(engine, rdb, log).Register(apiGroup)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

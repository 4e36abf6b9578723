package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/necpgame/combat-session-engine/internal/config"
	"github.com/necpgame/combat-session-engine/internal/httpapi"
	"github.com/necpgame/combat-session-engine/internal/manager"
	"github.com/necpgame/combat-session-engine/internal/metrics"
	"github.com/necpgame/combat-session-engine/internal/rewards"
	"github.com/necpgame/combat-session-engine/internal/session"
	"github.com/necpgame/combat-session-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open postgres", zap.Error(err))
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		st = store.NewMemory()
		logger.Warn("no database configured, sessions will not survive restarts")
	}

	var dispatcher rewards.Dispatcher = rewards.Nop{}
	if cfg.RewardsURL != "" {
		dispatcher = rewards.NewHTTP(cfg.RewardsURL)
	}

	prom := metrics.New()
	deps := session.Deps{
		Store:   st,
		Logger:  logger,
		Rewards: rewards.NewRetrying(dispatcher, logger),
		Sink:    prom,
	}
	mgr := manager.New(ctx, deps, cfg.Rules(), prom)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.SetupRoutes(mgr, prom, logger),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		mgr.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("shut down cleanly")
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

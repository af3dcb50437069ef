// Command panel-auth-sweeper prunes expired blacklist entries and idle limiter rows.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/panel-auth/internal/config"
	"github.com/and161185/panel-auth/internal/limiter"
	"github.com/and161185/panel-auth/internal/repository/postgres"
	"github.com/and161185/panel-auth/internal/sweeper"
)

// main runs one sweep, or sweeps periodically when -interval is set.
func main() {
	interval := flag.Duration("interval", 0, "sweep period; 0 runs once and exits")
	retention := flag.Duration("limiter-retention", 24*time.Hour, "drop unblocked limiter rows idle this long")
	flag.Parse()

	cfg, err := config.LoadStore()
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Fatal("load config", zap.Error(err))
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev() {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer db.Close()

	lim := limiter.NewPG(db.Pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
	sw := sweeper.New(postgres.NewBlacklistRepo(db), lim, *retention, logger)

	if *interval <= 0 {
		if err := sw.RunOnce(ctx); err != nil {
			logger.Error("sweep failed", zap.Error(err))
			db.Close()
			os.Exit(1)
		}
		return
	}
	if err := sw.Run(ctx, *interval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sweeper stopped", zap.Error(err))
	}
}

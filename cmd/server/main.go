// Command panel-auth starts the admin panel auth server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/and161185/panel-auth/internal/config"
	pkgcrypto "github.com/and161185/panel-auth/internal/crypto"
	"github.com/and161185/panel-auth/internal/limiter"
	"github.com/and161185/panel-auth/internal/metrics"
	"github.com/and161185/panel-auth/internal/migrate"
	"github.com/and161185/panel-auth/internal/repository/postgres"
	grpcserver "github.com/and161185/panel-auth/internal/server/grpc"
	httpserver "github.com/and161185/panel-auth/internal/server/http"
	"github.com/and161185/panel-auth/internal/service"
	"github.com/and161185/panel-auth/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations and serves HTTP (and optionally gRPC) until signalled.
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Fatal("load config", zap.Error(err))
	}

	logger := newLogger(cfg.Dev())
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ver, err := migrate.Up(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("schema ready", zap.Int64("version", ver))

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer db.Close()

	codec, err := token.NewCodec([]byte(cfg.JWTSecret), cfg.AccessTTL())
	if err != nil {
		logger.Fatal("token codec", zap.Error(err))
	}
	hasher := pkgcrypto.NewBcrypt(cfg.BcryptCost)

	var lim limiter.Limiter
	if cfg.LimiterEnabled() {
		lim = limiter.NewPG(db.Pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	refresh := service.NewRefreshTokenStore(postgres.NewRefreshTokenRepo(db), hasher, service.RefreshStoreConfig{
		TTL:            cfg.RefreshTTL(),
		MaxLivePerUser: cfg.RefreshMaxLivePerUser,
		ScanLimit:      cfg.RefreshScanLimit,
	}, logger)

	sessions := service.NewSessionService(service.Deps{
		Users:     postgres.NewUserRepo(db),
		Refresh:   refresh,
		Blacklist: postgres.NewBlacklistRepo(db),
		Codec:     codec,
		Hasher:    hasher,
		Limiter:   lim,
		Metrics:   m,
		Log:       logger,
	})

	e := httpserver.New(httpserver.Deps{
		Sessions: sessions,
		Store:    db,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
		Log:      logger,
	})

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening (http)", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var gs *grpc.Server
	hs := health.NewServer()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
		gs = grpcserver.New(sessions, grpcserver.DefaultPolicy(), hs, logger)
		go func() {
			logger.Info("listening (grpc)", zap.String("addr", cfg.GRPCAddr))
			errCh <- gs.Serve(lis)
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	shutdown(logger, e.Shutdown, gs, hs, cfg.ShutdownTimeout)
	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// shutdown drains HTTP and gRPC within timeout, then forces the gRPC stop.
func shutdown(
	logger *zap.Logger, httpShutdown func(context.Context) error, gs *grpc.Server, hs *health.Server, timeout time.Duration,
) {
	hs.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpShutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	if gs == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		gs.Stop()
	}
}

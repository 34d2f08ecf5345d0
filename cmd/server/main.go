package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/whnb773/catan-scoreboard/internal/config"
	"github.com/whnb773/catan-scoreboard/internal/httpapi"
	"github.com/whnb773/catan-scoreboard/internal/hub"
	"github.com/whnb773/catan-scoreboard/internal/lobby"
	"github.com/whnb773/catan-scoreboard/internal/logging"
	"github.com/whnb773/catan-scoreboard/internal/profile"
	"github.com/whnb773/catan-scoreboard/internal/store"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Server] config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development())
	if err != nil {
		log.Fatalf("[Server] logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	kv, err := store.NewSQLiteKV(cfg.LocalDBPath)
	if err != nil {
		return err
	}
	defer kv.Close()

	backends, err := openBackends(gctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.close()

	q := store.NewQueue(256, logger.Named("queue"))
	results := store.NewQueue(64, logger.Named("results"))
	profiles := profile.NewService(backends.profiles, logger.Named("profile"))
	gw := store.NewGateway(store.NewLocal(kv, "", logger), backends.remote, q, logger.Named("store"))
	lobbies := lobby.NewService(backends.lobbies, logger.Named("lobby")).WithFreshness(cfg.LobbyTTL)

	// Build the hub with the board factory injected
	h := hub.NewHub(gctx, hub.NewFactory(hub.BoardDeps{
		KV:           kv,
		Gateway:      gw,
		Queue:        q,
		Results:      results,
		Recorder:     profiles,
		Log:          logger.Named("board"),
		TickInterval: cfg.TickInterval,
	}))

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:      h,
			Lobbies:  lobbies,
			Profiles: profiles,
			Gateway:  gw,
			Log:      logger.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The queues outlive the server so pending work can drain on shutdown.
	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	g.Go(func() error { return q.Run(queueCtx) })
	g.Go(func() error { return results.Run(queueCtx) })

	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("env", cfg.Env),
			zap.String("backend", backends.mode))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err := srv.Shutdown(sctx)
		<-h.Done()
		if ferr := q.Flush(sctx); ferr != nil {
			logger.Warn("pending saves not flushed", zap.Error(ferr))
		}
		if ferr := results.Flush(sctx); ferr != nil {
			logger.Warn("pending game results not flushed", zap.Error(ferr))
		}
		stopQueue()
		return err
	})

	return g.Wait()
}

type backends struct {
	mode     string
	lobbies  lobby.Repository
	profiles profile.Repository
	remote   store.Remote
	closers  []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends picks in-memory stores when DATABASE_URL is empty, Postgres otherwise.
func openBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backends, error) {
	if cfg.DatabaseURL == "" {
		mem := lobby.NewMemoryStore(ctx)
		return &backends{
			mode:     "memory",
			lobbies:  mem,
			profiles: profile.NewMemoryRepo(),
			remote:   store.NewMemoryRemote(),
			closers:  []func(){mem.Close},
		}, nil
	}

	pg, err := lobby.NewPostgresStore(ctx, cfg.DatabaseURL, logger.Named("lobby"))
	if err != nil {
		return nil, err
	}
	b := &backends{mode: "postgres", lobbies: pg, closers: []func(){pg.Close}}

	gormLevel := gormlogger.Warn
	if !cfg.Development() {
		gormLevel = gormlogger.Error
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLevel),
	})
	if err != nil {
		b.close()
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		b.closers = append(b.closers, func() { sqlDB.Close() })
	}

	if b.profiles, err = profile.NewGormRepo(db); err != nil {
		b.close()
		return nil, err
	}
	if b.remote, err = store.NewGormRemote(db); err != nil {
		b.close()
		return nil, err
	}
	return b, nil
}

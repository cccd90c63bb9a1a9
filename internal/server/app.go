// Package server initializes and runs the Cherishly server: database and
// migrations, services, the HTTP API, and the background sync scheduler.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/cherishly/cherishly/internal/logging"
	"github.com/cherishly/cherishly/internal/ratelimit"
	"github.com/cherishly/cherishly/internal/server/aiclient"
	"github.com/cherishly/cherishly/internal/server/config"
	"github.com/cherishly/cherishly/internal/server/httpapi"
	"github.com/cherishly/cherishly/internal/server/peerclient"
	"github.com/cherishly/cherishly/internal/server/repositories/repomanager"
	"github.com/cherishly/cherishly/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	handler http.Handler
	sync    *services.SyncService
	limiter ratelimit.Limiter
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		limiter = ratelimit.NewRedisLimiter(
			redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
			cfg.RateLimitPerMinute, time.Minute)
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
	}

	ai := aiclient.New(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout)
	peer := peerclient.New(cfg.PeerTimeout)

	allowanceSvc := services.NewAllowanceService(db, m, cfg)
	peopleSvc := services.NewPeopleService(db, m)
	momentSvc := services.NewMomentService(db, m)
	syncSvc := services.NewSyncService(db, m, peer, cfg, logger)

	handler := httpapi.NewRouter(httpapi.Services{
		Users:       services.NewUserService(db, m, cfg),
		Allowance:   allowanceSvc,
		Suggestions: services.NewSuggestionService(allowanceSvc, peopleSvc, momentSvc, ai, logger),
		People:      peopleSvc,
		Moments:     momentSvc,
		Sync:        syncSvc,
		Match:       services.NewMatchService(db, m, peer, logger),
		Merge:       services.NewMergeService(db, m, logger),
	}, limiter, cfg, logger)

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		handler: handler,
		sync:    syncSvc,
		limiter: limiter,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server error", "error", err)
		cancelFunc()
	}
}

// runSyncScheduler pulls from peers on a fixed interval until the context is
// cancelled.
func (app *App) runSyncScheduler(ctx context.Context) {
	ticker := time.NewTicker(app.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.sync.SyncAll(ctx)
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSyncScheduler(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	if closer, ok := app.limiter.(interface{ Close() }); ok {
		closer.Close()
	}
}

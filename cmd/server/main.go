package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/database"
	"github.com/stemsi/testplatform-backend/internal/handler"
	"github.com/stemsi/testplatform-backend/internal/logger"
	"github.com/stemsi/testplatform-backend/internal/repository"
	"github.com/stemsi/testplatform-backend/internal/repository/memory"
	"github.com/stemsi/testplatform-backend/internal/router"
	"github.com/stemsi/testplatform-backend/internal/service"
	"github.com/stemsi/testplatform-backend/internal/validator"
	"github.com/stemsi/testplatform-backend/internal/worker"
)

// stores bundles the persistence backends selected by STORAGE_DRIVER.
type stores struct {
	sessions  repository.SessionStore
	tests     repository.TestStore
	attempts  repository.AttemptStore
	finalizer repository.Finalizer
	users     repository.UserStore
	warnings  repository.WarningStore
}

func postgresStores(pool *pgxpool.Pool) stores {
	attempts := repository.NewTestAttemptRepository(pool)
	return stores{
		sessions:  repository.NewTestSessionRepository(pool),
		tests:     repository.NewTestRepository(pool),
		attempts:  attempts,
		finalizer: attempts,
		users:     repository.NewUserRepository(pool),
		warnings:  repository.NewWarningLogRepository(pool),
	}
}

func memoryStores() stores {
	db := memory.NewDB()
	attempts := memory.NewAttemptStore(db)
	return stores{
		sessions:  memory.NewSessionStore(db),
		tests:     memory.NewTestStore(db),
		attempts:  attempts,
		finalizer: attempts,
		users:     memory.NewUserStore(db),
		warnings:  memory.NewWarningStore(db),
	}
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("storage", cfg.StorageDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting test platform backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Connect to Storage ────────────────────────────────────────────
	var st stores
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		st = postgresStores(pool)
	case config.StorageDriverMemory:
		log.Warn().Msg("In-memory storage selected; all data is lost on exit")
		st = memoryStores()
	default:
		log.Fatal().Str("driver", cfg.StorageDriver).Msg("Unknown STORAGE_DRIVER")
	}

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Services ──────────────────────────────────────────
	clock := service.SystemClock{}
	events := service.NewRedisEventPublisher(rdb, log)
	quota := repository.NewQuotaRepository(rdb)

	// Warnings go through the COPY-batching worker only when Postgres backs
	// them; the memory store is written synchronously.
	var warningQueue service.WarningQueue
	if cfg.StorageDriver == config.StorageDriverPostgres {
		warningQueue = service.NewRedisWarningQueue(rdb)
	}

	authService := service.NewAuthService(cfg, st.users)
	completionService := service.NewCompletionService(st.sessions, st.tests, st.finalizer, events, clock, cfg.Session, log)
	entitlementService := service.NewEntitlementService(st.users, quota, cfg.Session.DailyTestQuota)
	sessionService := service.NewSessionService(
		st.sessions, st.tests, st.attempts, st.users,
		entitlementService, completionService, events, clock, log,
	)
	warningService := service.NewWarningService(
		st.sessions, st.warnings, warningQueue, events, clock, cfg.Session.WarningThreshold, log,
	)
	monitorService := service.NewMonitorService(st.sessions, st.tests, clock)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Session: handler.NewSessionHandler(sessionService, completionService, warningService, log),
		Admin:   handler.NewAdminHandler(sessionService, completionService, warningService, clock, log),
		Monitor: handler.NewMonitorHandler(rdb, monitorService, log),
		WS:      handler.NewWSHandler(sessionService, completionService, warningService, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(rdb, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// ─── Start Background Workers ─────────────────────────────────────
	// Workers get their own context so they outlive the HTTP drain and
	// flush whatever the last requests enqueued.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		wg, wctx := errgroup.WithContext(workerCtx)
		if warningQueue != nil {
			warningWorker := worker.NewWarningWorker(rdb, st.warnings, log)
			wg.Go(func() error {
				warningWorker.Start(wctx)
				return nil
			})
		}
		sweepWorker := worker.NewSweepWorker(completionService, clock, cfg.Session.SweepInterval, log)
		wg.Go(func() error {
			sweepWorker.Start(wctx)
			return nil
		})
		_ = wg.Wait()
	}()

	// ─── Start Server ──────────────────────────────────────────────────
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		// 1. Stop accepting new HTTP requests.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		// 2. Stop background workers and wait for the queue to drain.
		workerCancel()
		select {
		case <-workersDone:
		case <-time.After(10 * time.Second):
			log.Warn().Msg("Workers did not stop in time")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		stop()
		os.Exit(1)
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

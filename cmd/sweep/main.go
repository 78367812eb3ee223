package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/database"
	"github.com/stemsi/testplatform-backend/internal/logger"
	"github.com/stemsi/testplatform-backend/internal/repository"
	"github.com/stemsi/testplatform-backend/internal/service"
	"github.com/stemsi/testplatform-backend/internal/worker"
)

// previewSweeper lets the worker loop run dry sweeps.
type previewSweeper struct {
	completion *service.CompletionService
}

func (p previewSweeper) SweepExpiredSessions(ctx context.Context, now time.Time) (*service.SweepResult, error) {
	return p.completion.PreviewSweep(ctx, now)
}

func main() {
	once := flag.Bool("once", false, "Run a single sweep and exit")
	dryRun := flag.Bool("dry-run", false, "Report overdue sessions without finalizing them")
	interval := flag.Duration("interval", 0, "Sweep interval (defaults to SWEEP_INTERVAL_SECONDS)")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	if *interval <= 0 {
		*interval = cfg.Session.SweepInterval
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	// Monitors miss the expiry events without Redis, but the sweep itself
	// only needs Postgres.
	var events service.EventPublisher = service.NopPublisher{}
	if rdb, err := database.NewRedisClient(ctx, cfg, log); err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, session events will not be published")
	} else {
		defer rdb.Close()
		events = service.NewRedisEventPublisher(rdb, log)
	}

	// ─── Initialize Services ──────────────────────────────────────────
	attempts := repository.NewTestAttemptRepository(pool)
	completion := service.NewCompletionService(
		repository.NewTestSessionRepository(pool),
		repository.NewTestRepository(pool),
		attempts,
		events,
		service.SystemClock{},
		cfg.Session,
		log,
	)

	var sweeper worker.Sweeper = completion
	if *dryRun {
		sweeper = previewSweeper{completion: completion}
	}
	w := worker.NewSweepWorker(sweeper, service.SystemClock{}, *interval, log)

	if *once {
		res := w.RunOnce(ctx)
		if res == nil {
			log.Fatal().Msg("Sweep failed")
		}
		report(res)
		return
	}

	log.Info().Dur("interval", *interval).Bool("dry_run", *dryRun).Msg("Sweep runner started")
	w.Start(ctx)
}

func report(res *service.SweepResult) {
	if res.DryRun {
		fmt.Printf("Dry run: %d session(s) would be expired\n", res.Candidates)
		return
	}
	fmt.Printf("Expired %d session(s), %d failed\n", res.ExpiredCount, res.Failed)
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

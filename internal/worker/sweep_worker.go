package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/service"
)

// Sweeper finalizes overdue sessions.
type Sweeper interface {
	SweepExpiredSessions(ctx context.Context, now time.Time) (*service.SweepResult, error)
}

// SweepWorker runs the expiry sweep on a fixed interval.
type SweepWorker struct {
	sweeper  Sweeper
	clock    service.Clock
	interval time.Duration
	log      zerolog.Logger
}

// NewSweepWorker creates a new SweepWorker.
func NewSweepWorker(sweeper Sweeper, clock service.Clock, interval time.Duration, log zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepWorker{
		sweeper:  sweeper,
		clock:    clock,
		interval: interval,
		log:      log.With().Str("component", "sweep_worker").Logger(),
	}
}

// Start sweeps once immediately, then on every tick until ctx is cancelled.
func (w *SweepWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("SweepWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)

		select {
		case <-ctx.Done():
			w.log.Info().Msg("SweepWorker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep and logs its outcome.
func (w *SweepWorker) RunOnce(ctx context.Context) *service.SweepResult {
	started := time.Now()
	result, err := w.sweeper.SweepExpiredSessions(ctx, w.clock.Now())
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Expiry sweep failed")
		}
		return result
	}

	if result.ExpiredCount > 0 || result.Failed > 0 {
		w.log.Info().
			Int("expired_count", result.ExpiredCount).
			Int("failed", result.Failed).
			Dur("took", time.Since(started)).
			Msg("Expiry sweep")
	}
	return result
}

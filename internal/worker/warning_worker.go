package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// WarningWorker drains the warning-log queue into the database in batches.
type WarningWorker struct {
	rdb      *redis.Client
	warnings repository.WarningStore
	log      zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	backoff      time.Duration
}

// NewWarningWorker creates a new WarningWorker.
func NewWarningWorker(rdb *redis.Client, warnings repository.WarningStore, log zerolog.Logger) *WarningWorker {
	return &WarningWorker{
		rdb:          rdb,
		warnings:     warnings,
		log:          log.With().Str("component", "warning_worker").Logger(),
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		backoff:      2 * time.Second,
	}
}

// Start blocks until ctx is cancelled, then flushes what it holds.
func (w *WarningWorker) Start(ctx context.Context) {
	w.log.Info().Msg("WarningWorker started")

	buffer := make([]model.WarningLog, 0, w.batchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 && (len(buffer) >= w.batchSize || time.Since(lastFlushTime) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlushTime = time.Now()
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. BLPop returns at once when data is queued, else after PollTimeout.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistWarningsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, backing off")
			w.sleep(ctx, w.backoff)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var entry model.WarningLog
		if err := json.Unmarshal([]byte(result[1]), &entry); err != nil {
			// A malformed entry can never succeed; drop it.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed warning log")
			continue
		}

		buffer = append(buffer, entry)
	}
}

// flushSafe tries COPY first, then row-by-row, then requeues what is left.
func (w *WarningWorker) flushSafe(ctx context.Context, batch []model.WarningLog) {
	n, err := w.warnings.BulkInsert(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("count", n).Msg("Warning logs persisted")
		return
	}

	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *WarningWorker) fallbackInsert(ctx context.Context, batch []model.WarningLog) {
	var requeueList []model.WarningLog

	for i := range batch {
		entry := batch[i]
		err := w.warnings.Insert(ctx, &entry)
		if err == nil {
			continue
		}

		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
			w.log.Error().Err(err).Str("session_id", entry.SessionID.String()).Msg("Dropping warning log rejected by the database")
			continue
		}

		w.log.Error().Err(err).Int64("student_id", entry.StudentID).Msg("Insert failed, requeueing")
		requeueList = append(requeueList, entry)
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *WarningWorker) requeue(ctx context.Context, items []model.WarningLog) {
	// The shutdown context may already be spent; the push must still happen.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	pipe := w.rdb.Pipeline()
	for _, entry := range items {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		pipe.RPush(pushCtx, config.WorkerKey.PersistWarningsQueue, data)
	}

	if _, err := pipe.Exec(pushCtx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue warning logs. Data loss occurred.")
		return
	}

	w.log.Info().Int("count", len(items)).Msg("Requeued failed warning logs")
	// Give a struggling database room before the next batch.
	w.sleep(ctx, w.backoff)
}

func (w *WarningWorker) shutdown(buffer []model.WarningLog) {
	w.log.Info().Msg("WarningWorker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func (w *WarningWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
	"github.com/stemsi/testplatform-backend/internal/repository/memory"
	"github.com/stemsi/testplatform-backend/internal/service"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func enqueue(t *testing.T, rdb *redis.Client, entries ...model.WarningLog) {
	t.Helper()
	for _, e := range entries {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistWarningsQueue, data).Err())
	}
}

func warning(session uuid.UUID, kind model.WarningType) model.WarningLog {
	return model.WarningLog{
		SessionID: session,
		StudentID: 7,
		Type:      kind,
		Message:   string(kind),
		CreatedAt: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestWarningWorkerPersistsQueue(t *testing.T) {
	rdb := newRedis(t)
	store := memory.NewWarningStore(memory.NewDB())
	session := uuid.New()

	enqueue(t, rdb, warning(session, model.WarningCopy), warning(session, model.WarningPaste))
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistWarningsQueue, "{not json").Err())
	enqueue(t, rdb, warning(session, model.WarningCut))

	w := NewWarningWorker(rdb, store, zerolog.New(io.Discard))
	w.batchTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		logs, _ := store.ListBySession(context.Background(), session)
		return len(logs) == 3
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	left, err := rdb.LLen(context.Background(), config.WorkerKey.PersistWarningsQueue).Result()
	require.NoError(t, err)
	assert.Zero(t, left, "the malformed entry is dropped, not requeued")
}

func TestWarningWorkerFlushesOnShutdown(t *testing.T) {
	rdb := newRedis(t)
	store := memory.NewWarningStore(memory.NewDB())
	session := uuid.New()

	w := NewWarningWorker(rdb, store, zerolog.New(io.Discard))
	w.shutdown([]model.WarningLog{warning(session, model.WarningTabSwitch)})

	logs, err := store.ListBySession(context.Background(), session)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

// flakyStore fails every bulk insert and the row inserts listed in failRow.
type flakyStore struct {
	repository.WarningStore
	mu       sync.Mutex
	failRow  map[model.WarningType]error
	inserted []model.WarningLog
}

func (f *flakyStore) BulkInsert(context.Context, []model.WarningLog) (int64, error) {
	return 0, errors.New("copy failed")
}

func (f *flakyStore) Insert(_ context.Context, w *model.WarningLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failRow[w.Type]; err != nil {
		return err
	}
	f.inserted = append(f.inserted, *w)
	return nil
}

func TestWarningWorkerFallbackAndRequeue(t *testing.T) {
	rdb := newRedis(t)
	store := &flakyStore{failRow: map[model.WarningType]error{
		model.WarningPaste: errors.New("connection reset"),
		model.WarningCut:   repository.ErrConflict,
	}}
	session := uuid.New()

	w := NewWarningWorker(rdb, store, zerolog.New(io.Discard))
	w.backoff = time.Millisecond

	w.flushSafe(context.Background(), []model.WarningLog{
		warning(session, model.WarningCopy),
		warning(session, model.WarningPaste),
		warning(session, model.WarningCut),
	})

	require.Len(t, store.inserted, 1)
	assert.Equal(t, model.WarningCopy, store.inserted[0].Type)

	items, err := rdb.LRange(context.Background(), config.WorkerKey.PersistWarningsQueue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 1, "only the transient failure is requeued")

	var requeued model.WarningLog
	require.NoError(t, json.Unmarshal([]byte(items[0]), &requeued))
	assert.Equal(t, model.WarningPaste, requeued.Type)
	assert.Equal(t, session, requeued.SessionID)
}

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepExpiredSessions(context.Context, time.Time) (*service.SweepResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &service.SweepResult{ExpiredCount: 1, Candidates: 1}, nil
}

func TestSweepWorkerRunsUntilCancelled(t *testing.T) {
	sweeper := &countingSweeper{}
	w := NewSweepWorker(sweeper, service.SystemClock{}, 10*time.Millisecond, zerolog.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestSweepWorkerRunOnce(t *testing.T) {
	ok := NewSweepWorker(&countingSweeper{}, service.SystemClock{}, 0, zerolog.New(io.Discard))
	res := ok.RunOnce(context.Background())
	require.NotNil(t, res)
	assert.Equal(t, 1, res.ExpiredCount)
	assert.Equal(t, time.Minute, ok.interval, "a non-positive interval falls back to a minute")

	failing := NewSweepWorker(&countingSweeper{err: errors.New("db down")}, service.SystemClock{}, time.Second, zerolog.New(io.Discard))
	assert.Nil(t, failing.RunOnce(context.Background()))
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository/memory"
)

func TestLogWarningEscalatesOnce(t *testing.T) {
	h := newHarness(t, testSessionConfig())
	ctx := context.Background()

	s, err := h.sessions.StartSession(ctx, quizID, studentID)
	require.NoError(t, err)

	wantEscalation := []bool{false, false, true, false, false}
	for i, want := range wantEscalation {
		res, err := h.warnings.LogWarning(ctx, s.ID, studentID, model.WarningTabSwitch, "left the tab")
		require.NoError(t, err)
		assert.True(t, res.Logged)
		assert.Equal(t, i+1, res.WarningCount)
		assert.Equal(t, want, res.EscalationTriggered, "warning %d", i+1)
	}

	stored := h.session(t, s)
	assert.Equal(t, 5, stored.WarningCount)
	assert.True(t, stored.UnbanPromptShown)
	assert.Equal(t, 1, h.events.count(model.EventEscalation))
	assert.Equal(t, 5, h.events.count(model.EventWarningLogged))

	logs, err := h.warnings.ListWarnings(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, logs, 5)
	assert.Equal(t, model.WarningTabSwitch, logs[0].Type)
	assert.Equal(t, studentID, logs[0].StudentID)
}

func TestLogWarningConcurrentEscalation(t *testing.T) {
	h := newHarness(t, testSessionConfig())
	ctx := context.Background()

	s, err := h.sessions.StartSession(ctx, quizID, studentID)
	require.NoError(t, err)

	const callers = 20
	escalations := make([]bool, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			res, err := h.warnings.LogWarning(ctx, s.ID, studentID, model.WarningCopy, "copy")
			if err != nil {
				return err
			}
			escalations[i] = res.EscalationTriggered
			return nil
		})
	}
	require.NoError(t, g.Wait())

	fired := 0
	for _, e := range escalations {
		if e {
			fired++
		}
	}
	assert.Equal(t, 1, fired)
	assert.Equal(t, callers, h.session(t, s).WarningCount)
}

func TestLogWarningRejected(t *testing.T) {
	h := newHarness(t, testSessionConfig())
	ctx := context.Background()

	s, err := h.sessions.StartSession(ctx, quizID, studentID)
	require.NoError(t, err)

	_, err = h.warnings.LogWarning(ctx, uuid.New(), studentID, model.WarningCopy, "copy")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.warnings.LogWarning(ctx, s.ID, otherStudentID, model.WarningCopy, "copy")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, h.session(t, s).WarningCount)
}

func TestLogWarningExpiresOverdueSession(t *testing.T) {
	h := newHarness(t, testSessionConfig())
	ctx := context.Background()

	s, err := h.sessions.StartSession(ctx, quizID, studentID)
	require.NoError(t, err)

	h.clock.Advance(31 * time.Minute)
	res, err := h.warnings.LogWarning(ctx, s.ID, studentID, model.WarningTabSwitch, "left the tab")
	require.NoError(t, err)
	assert.True(t, res.Logged)
	assert.Equal(t, 1, res.WarningCount)

	stored := h.session(t, s)
	assert.True(t, stored.IsExpired, "the access persisted the expiry")
	assert.False(t, stored.IsCompleted)
	assert.Equal(t, model.SessionStateExpired, stored.State())
	assert.Equal(t, 1, h.events.count(model.EventSessionExpired))

	_, err = h.warnings.LogWarning(ctx, s.ID, studentID, model.WarningTabSwitch, "left the tab")
	require.NoError(t, err)
	assert.Equal(t, 1, h.events.count(model.EventSessionExpired), "expiry is published once")
}

type brokenQueue struct{}

func (brokenQueue) Enqueue(context.Context, model.WarningLog) error {
	return errors.New("queue down")
}

func TestLogWarningQueues(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := newHarness(t, testSessionConfig())
	ctx := context.Background()
	db := h.db
	warningStore := memory.NewWarningStore(db)

	s, err := h.sessions.StartSession(ctx, quizID, studentID)
	require.NoError(t, err)

	queued := NewWarningService(memory.NewSessionStore(db), warningStore, NewRedisWarningQueue(rdb),
		h.events, h.clock, 3, zerolog.New(io.Discard))
	_, err = queued.LogWarning(ctx, s.ID, studentID, model.WarningPrintScreen, "screenshot")
	require.NoError(t, err)

	items, err := rdb.LRange(ctx, config.WorkerKey.PersistWarningsQueue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 1)
	var entry model.WarningLog
	require.NoError(t, json.Unmarshal([]byte(items[0]), &entry))
	assert.Equal(t, s.ID, entry.SessionID)
	assert.Equal(t, model.WarningPrintScreen, entry.Type)

	logs, err := warningStore.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, logs, "queued warnings are written by the worker")

	fallback := NewWarningService(memory.NewSessionStore(db), warningStore, brokenQueue{},
		h.events, h.clock, 3, zerolog.New(io.Discard))
	_, err = fallback.LogWarning(ctx, s.ID, studentID, model.WarningPaste, "paste")
	require.NoError(t, err)

	logs, err = warningStore.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1, "a failing queue falls back to a direct insert")
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
)

// WarningResult is returned after a violation is recorded.
type WarningResult struct {
	Logged              bool `json:"logged"`
	EscalationTriggered bool `json:"escalation_triggered"`
	WarningCount        int  `json:"warning_count"`
}

// WarningQueue hands warning logs to the persistence worker.
type WarningQueue interface {
	Enqueue(ctx context.Context, w model.WarningLog) error
}

// RedisWarningQueue pushes warning logs onto the Redis persistence queue.
type RedisWarningQueue struct {
	rdb *redis.Client
}

// NewRedisWarningQueue creates a new RedisWarningQueue.
func NewRedisWarningQueue(rdb *redis.Client) *RedisWarningQueue {
	return &RedisWarningQueue{rdb: rdb}
}

func (q *RedisWarningQueue) Enqueue(ctx context.Context, w model.WarningLog) error {
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistWarningsQueue, data).Err()
}

// WarningService tracks anti-cheat violations and raises the one-time escalation.
// It never bans anyone; the escalation event is for the caller to act on.
type WarningService struct {
	sessions  repository.SessionStore
	warnings  repository.WarningStore
	queue     WarningQueue
	events    EventPublisher
	clock     Clock
	threshold int
	log       zerolog.Logger
}

// NewWarningService creates a new WarningService. queue may be nil, in which
// case logs are written synchronously.
func NewWarningService(
	sessions repository.SessionStore,
	warnings repository.WarningStore,
	queue WarningQueue,
	events EventPublisher,
	clock Clock,
	threshold int,
	log zerolog.Logger,
) *WarningService {
	return &WarningService{
		sessions:  sessions,
		warnings:  warnings,
		queue:     queue,
		events:    events,
		clock:     clock,
		threshold: threshold,
		log:       log.With().Str("component", "warning_service").Logger(),
	}
}

// LogWarning records a violation and bumps the session's counter.
func (w *WarningService) LogWarning(ctx context.Context, sessionID uuid.UUID, studentID int64, kind model.WarningType, message string) (*WarningResult, error) {
	sess, err := w.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFound(err)
	}
	if sess.StudentID != studentID {
		return nil, ErrUnauthorized
	}

	now := w.clock.Now()
	if !sess.IsCompleted && (sess.IsExpired || sess.Elapsed(now)) {
		if err := w.expire(ctx, sess, now); err != nil {
			return nil, err
		}
	}

	count, escalated, err := w.sessions.IncrementWarnings(ctx, sessionID, w.threshold, now)
	if err != nil {
		return nil, fmt.Errorf("increment warnings: %w", notFound(err))
	}

	entry := model.WarningLog{
		SessionID: sessionID,
		StudentID: studentID,
		Type:      kind,
		Message:   message,
		CreatedAt: now,
	}
	if err := w.persist(ctx, entry); err != nil {
		return nil, fmt.Errorf("persist warning: %w", err)
	}

	logEvt := w.log.Info()
	if escalated {
		logEvt = w.log.Warn()
	}
	logEvt.
		Str("session_id", sessionID.String()).
		Int64("student_id", studentID).
		Str("warning_type", string(kind)).
		Int("warning_count", count).
		Bool("escalated", escalated).
		Msg("Warning logged")

	ev := model.SessionEvent{
		Type:         model.EventWarningLogged,
		SessionID:    sessionID,
		TestID:       sess.TestID,
		StudentID:    studentID,
		WarningCount: count,
		WarningType:  kind,
		At:           now,
	}
	w.events.Publish(ctx, ev)
	if escalated {
		ev.Type = model.EventEscalation
		w.events.Publish(ctx, ev)
	}

	return &WarningResult{Logged: true, EscalationTriggered: escalated, WarningCount: count}, nil
}

// ListWarnings returns the recorded violations of a session.
func (w *WarningService) ListWarnings(ctx context.Context, sessionID uuid.UUID) ([]model.WarningLog, error) {
	if _, err := w.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, notFound(err)
	}
	return w.warnings.ListBySession(ctx, sessionID)
}

// expire persists the expiry of an overdue session. The warning is still recorded.
func (w *WarningService) expire(ctx context.Context, sess *model.TestSession, now time.Time) error {
	changed, err := w.sessions.MarkExpired(ctx, sess.ID, now)
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	if !changed {
		return nil
	}
	w.log.Info().
		Str("session_id", sess.ID.String()).
		Int64("student_id", sess.StudentID).
		Int64("test_id", sess.TestID).
		Msg("Session expired")

	w.events.Publish(ctx, model.SessionEvent{
		Type:      model.EventSessionExpired,
		SessionID: sess.ID,
		TestID:    sess.TestID,
		StudentID: sess.StudentID,
		At:        now,
	})
	return nil
}

func (w *WarningService) persist(ctx context.Context, entry model.WarningLog) error {
	if w.queue != nil {
		err := w.queue.Enqueue(ctx, entry)
		if err == nil {
			return nil
		}
		w.log.Warn().Err(err).Msg("Warning queue unavailable, writing synchronously")
	}
	return w.warnings.Insert(ctx, &entry)
}

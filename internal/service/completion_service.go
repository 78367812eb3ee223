package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
	"github.com/stemsi/testplatform-backend/internal/retry"
	"github.com/stemsi/testplatform-backend/internal/scoring"
)

// Outcome messages returned to the student.
const (
	MessageCompleted   = "Test completed successfully"
	MessageAutoExpired = "Test auto-completed due to time expiry"
)

// CompletionResult describes a finalized session.
type CompletionResult struct {
	SessionID     uuid.UUID `json:"session_id"`
	AttemptID     int64     `json:"attempt_id"`
	Score         float64   `json:"score"`
	Correct       int       `json:"correct_answers"`
	Total         int       `json:"total_questions"`
	TimeTaken     int       `json:"time_taken"`
	Message       string    `json:"message"`
	WasExpired    bool      `json:"was_expired"`
	StarsAwarded  int       `json:"stars_awarded"`
	StarsRefunded int       `json:"stars_refunded"`
}

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	ExpiredCount int  `json:"expired_count"`
	Failed       int  `json:"failed"`
	Candidates   int  `json:"candidates"`
	DryRun       bool `json:"dry_run"`
}

// CompletionService turns sessions into permanent attempts exactly once.
type CompletionService struct {
	sessions  repository.SessionStore
	tests     repository.TestStore
	finalizer repository.Finalizer
	events    EventPublisher
	clock     Clock
	policy    retry.Policy
	cfg       config.SessionConfig
	log       zerolog.Logger
}

// NewCompletionService creates a new CompletionService.
func NewCompletionService(
	sessions repository.SessionStore,
	tests repository.TestStore,
	finalizer repository.Finalizer,
	events EventPublisher,
	clock Clock,
	cfg config.SessionConfig,
	log zerolog.Logger,
) *CompletionService {
	return &CompletionService{
		sessions:  sessions,
		tests:     tests,
		finalizer: finalizer,
		events:    events,
		clock:     clock,
		policy: retry.New(cfg.FinalizeMaxAttempts, cfg.FinalizeBaseDelay, func(err error) bool {
			return errors.Is(err, repository.ErrLockContention)
		}),
		cfg: cfg,
		log: log.With().Str("component", "completion_service").Logger(),
	}
}

// CompleteSession finalizes a session on the student's request. A session
// whose deadline has already passed is still scored, tagged as expired and
// charged the full time limit.
func (c *CompletionService) CompleteSession(ctx context.Context, sessionID uuid.UUID, studentID int64) (*CompletionResult, error) {
	s, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFound(err)
	}
	if s.StudentID != studentID {
		return nil, ErrUnauthorized
	}
	if s.Finalized() {
		return nil, ErrAlreadyCompleted
	}

	res, err := c.finalize(ctx, s, true)
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("session_id", sessionID.String()).
		Int64("student_id", studentID).
		Int64("test_id", s.TestID).
		Float64("score", res.Score).
		Bool("was_expired", res.WasExpired).
		Msg("Session completed")
	return res, nil
}

// FinalizeExpired finalizes a session whose deadline has passed without an
// explicit submission. The session ends Expired, not Completed.
func (c *CompletionService) FinalizeExpired(ctx context.Context, s *model.TestSession) (*CompletionResult, error) {
	if s.Finalized() {
		return nil, ErrAlreadyCompleted
	}
	return c.finalize(ctx, s, false)
}

// SweepExpiredSessions finalizes every unfinalized session whose deadline is
// at or before now. Failures are logged per session and do not stop the sweep.
func (c *CompletionService) SweepExpiredSessions(ctx context.Context, now time.Time) (*SweepResult, error) {
	return c.sweep(ctx, now, false)
}

// PreviewSweep reports how many sessions a sweep at now would finalize.
func (c *CompletionService) PreviewSweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	return c.sweep(ctx, now, true)
}

func (c *CompletionService) sweep(ctx context.Context, now time.Time, dryRun bool) (*SweepResult, error) {
	result := &SweepResult{DryRun: dryRun}
	batch := c.cfg.SweepBatchSize
	if batch <= 0 {
		batch = 500
	}
	var cursor repository.SweepCursor

	for {
		candidates, err := c.sessions.ListExpired(ctx, now, cursor, batch)
		if err != nil {
			return result, fmt.Errorf("list expired sessions: %w", err)
		}

		for i := range candidates {
			s := &candidates[i]
			result.Candidates++

			if dryRun {
				c.log.Info().
					Str("session_id", s.ID.String()).
					Int64("student_id", s.StudentID).
					Int64("test_id", s.TestID).
					Time("expires_at", s.ExpiresAt).
					Msg("Would expire session")
				continue
			}

			if _, err := c.FinalizeExpired(ctx, s); err != nil {
				if errors.Is(err, ErrAlreadyCompleted) {
					continue
				}
				result.Failed++
				c.log.Error().Err(err).Str("session_id", s.ID.String()).Msg("Failed to expire session")
				continue
			}
			result.ExpiredCount++
		}

		// Rows that keep failing stay behind the cursor, so later pages still get their turn.
		if dryRun || len(candidates) < batch || ctx.Err() != nil {
			break
		}
		cursor = repository.After(&candidates[len(candidates)-1])
	}

	if result.Candidates > 0 {
		c.log.Info().
			Int("expired", result.ExpiredCount).
			Int("failed", result.Failed).
			Bool("dry_run", dryRun).
			Msg("Expiry sweep finished")
	}
	return result, nil
}

// finalize scores the session and writes the attempt under the session lock,
// retrying lock contention with the configured policy.
func (c *CompletionService) finalize(ctx context.Context, s *model.TestSession, explicit bool) (*CompletionResult, error) {
	test, err := c.tests.GetByID(ctx, s.TestID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", notFound(err))
	}
	questions, err := c.tests.ListQuestions(ctx, s.TestID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	var res *CompletionResult
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		return c.finalizer.RunLocked(ctx, s.ID, func(ctx context.Context, tx repository.FinalizeTx, locked *model.TestSession) error {
			r, err := c.apply(ctx, tx, locked, test, questions, explicit)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyCompleted):
		return nil, ErrAlreadyCompleted
	case errors.Is(err, repository.ErrLockContention):
		return nil, ErrLockContention
	case errors.Is(err, repository.ErrConflict):
		return nil, ErrDuplicateAttempt
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("finalize session: %w", err)
	}

	ev := model.SessionEvent{
		Type:      model.EventSessionCompleted,
		SessionID: s.ID,
		TestID:    s.TestID,
		StudentID: s.StudentID,
		Score:     &res.Score,
		At:        c.clock.Now(),
	}
	if !explicit {
		ev.Type = model.EventSessionExpired
	}
	c.events.Publish(ctx, ev)
	return res, nil
}

// apply performs every write of a finalization. It runs with the session row locked.
func (c *CompletionService) apply(
	ctx context.Context,
	tx repository.FinalizeTx,
	s *model.TestSession,
	test *model.Test,
	questions []model.Question,
	explicit bool,
) (*CompletionResult, error) {
	if s.Finalized() {
		return nil, ErrAlreadyCompleted
	}

	now := c.clock.Now()
	expired := !explicit || s.IsExpired || s.Elapsed(now)

	timeTaken := test.TimeLimit
	if !expired {
		timeTaken = int(now.Sub(s.StartedAt) / time.Minute)
		if timeTaken < 0 {
			timeTaken = 0
		}
	}

	graded := scoring.Score(questions, s.Answers)
	attempt := &model.TestAttempt{
		StudentID:   s.StudentID,
		TestID:      s.TestID,
		Answers:     s.Answers,
		Score:       graded.Score,
		SubmittedAt: now,
		TimeTaken:   timeTaken,
	}

	inserted, err := tx.UpsertAttempt(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("upsert attempt: %w", err)
	}
	if err := tx.MarkFinalized(ctx, s.ID, attempt.ID, explicit, expired, now); err != nil {
		return nil, fmt.Errorf("mark session finalized: %w", err)
	}

	res := &CompletionResult{
		SessionID:  s.ID,
		AttemptID:  attempt.ID,
		Score:      graded.Score,
		Correct:    graded.Correct,
		Total:      graded.Total,
		TimeTaken:  timeTaken,
		Message:    MessageCompleted,
		WasExpired: expired,
	}
	if expired {
		res.Message = MessageAutoExpired
	}

	// An overwritten attempt already paid out its rewards.
	if !inserted {
		c.log.Warn().
			Str("session_id", s.ID.String()).
			Int64("attempt_id", attempt.ID).
			Msg("Attempt already existed, converged without rewards")
		return res, nil
	}

	if err := tx.UpdateStudentStats(ctx, s.StudentID, graded.Score); err != nil {
		return nil, fmt.Errorf("update student stats: %w", err)
	}

	testID := test.ID
	if reward := c.cfg.CompletionRewardStars; reward > 0 {
		if err := tx.CreditStars(ctx, s.StudentID, reward, model.StarReasonCompletionReward, &testID, now); err != nil {
			return nil, fmt.Errorf("credit completion reward: %w", err)
		}
		res.StarsAwarded = reward
	}

	if test.StarPrice > 0 && graded.Score >= c.cfg.RefundThresholdPercent {
		refund, err := tx.ClaimRefund(ctx, s.StudentID, test.ID)
		if err != nil {
			return nil, fmt.Errorf("claim refund: %w", err)
		}
		if refund > 0 {
			if err := tx.CreditStars(ctx, s.StudentID, refund, model.StarReasonTestRefund, &testID, now); err != nil {
				return nil, fmt.Errorf("credit refund: %w", err)
			}
			res.StarsRefunded = refund
		}
	}
	return res, nil
}

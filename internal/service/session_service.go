package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
)

// SessionService drives the test session lifecycle.
type SessionService struct {
	sessions    repository.SessionStore
	tests       repository.TestStore
	attempts    repository.AttemptStore
	users       repository.UserStore
	entitlement *EntitlementService
	completion  *CompletionService
	events      EventPublisher
	clock       Clock
	log         zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions repository.SessionStore,
	tests repository.TestStore,
	attempts repository.AttemptStore,
	users repository.UserStore,
	entitlement *EntitlementService,
	completion *CompletionService,
	events EventPublisher,
	clock Clock,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		tests:       tests,
		attempts:    attempts,
		users:       users,
		entitlement: entitlement,
		completion:  completion,
		events:      events,
		clock:       clock,
		log:         log.With().Str("component", "session_service").Logger(),
	}
}

// View projects a session at the current time.
func (s *SessionService) View(sess *model.TestSession) model.SessionView {
	return model.NewSessionView(sess, s.clock.Now())
}

// StartSession opens a session for the student, or returns the one already open.
func (s *SessionService) StartSession(ctx context.Context, testID, studentID int64) (*model.TestSession, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, notFound(err)
	}
	if !test.IsActive {
		return nil, ErrNotFound
	}

	done, err := s.attempts.Exists(ctx, studentID, testID)
	if err != nil {
		return nil, fmt.Errorf("check attempt: %w", err)
	}
	if done {
		return nil, ErrAlreadyCompleted
	}

	now := s.clock.Now()

	existing, err := s.sessions.GetOpen(ctx, studentID, testID)
	switch {
	case err == nil:
		if !existing.IsExpired && !existing.Elapsed(now) {
			return existing, nil
		}
		// The deadline passed without a submission; settle it before refusing.
		if _, ferr := s.completion.FinalizeExpired(ctx, existing); ferr != nil && !errors.Is(ferr, ErrAlreadyCompleted) {
			return nil, fmt.Errorf("finalize stale session: %w", ferr)
		}
		return nil, ErrAlreadyCompleted
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("check open session: %w", err)
	}

	student, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("get student: %w", err)
	}

	release, err := s.entitlement.Authorize(ctx, student, test, now)
	if err != nil {
		return nil, err
	}

	session := &model.TestSession{
		ID:        uuid.New(),
		TestID:    testID,
		StudentID: studentID,
		StartedAt: now,
		ExpiresAt: now.Add(test.Duration()),
		Answers:   map[string]string{},
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		release()
		if errors.Is(err, repository.ErrConflict) {
			// Concurrent start detected
			winner, fetchErr := s.sessions.GetOpen(ctx, studentID, testID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Int64("student_id", studentID).
		Int64("test_id", testID).
		Time("expires_at", session.ExpiresAt).
		Msg("Session started")

	s.events.Publish(ctx, model.SessionEvent{
		Type:      model.EventSessionStarted,
		SessionID: session.ID,
		TestID:    testID,
		StudentID: studentID,
		At:        now,
	})
	return session, nil
}

// GetSession returns a live session owned by the student.
func (s *SessionService) GetSession(ctx context.Context, sessionID uuid.UUID, studentID int64) (*model.TestSession, error) {
	sess, err := s.load(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLive(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdateAnswers merges delta into the session's answers.
func (s *SessionService) UpdateAnswers(ctx context.Context, sessionID uuid.UUID, studentID int64, delta map[string]string) (*model.TestSession, error) {
	sess, err := s.load(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLive(ctx, sess); err != nil {
		return nil, err
	}
	if len(delta) == 0 {
		return sess, nil
	}

	updated, err := s.sessions.MergeAnswers(ctx, sessionID, delta, s.clock.Now())
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("merge answers: %w", err)
	}

	// The session left the active state between the check and the write.
	sess, err = s.load(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLive(ctx, sess); err != nil {
		return nil, err
	}
	return nil, ErrGone
}

// MarkExpired flags the session as expired unless it already ended.
func (s *SessionService) MarkExpired(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return notFound(err)
	}
	return s.markExpired(ctx, sess)
}

// ListActive returns the student's sessions that are still running.
func (s *SessionService) ListActive(ctx context.Context, studentID int64) ([]model.TestSession, error) {
	sessions, err := s.sessions.ListActiveByStudent(ctx, studentID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionService) load(ctx context.Context, sessionID uuid.UUID, studentID int64) (*model.TestSession, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFound(err)
	}
	if sess.StudentID != studentID {
		return nil, ErrUnauthorized
	}
	return sess, nil
}

// checkLive rejects terminal sessions and expires overdue ones on the spot.
func (s *SessionService) checkLive(ctx context.Context, sess *model.TestSession) error {
	if sess.IsCompleted {
		return ErrAlreadyCompleted
	}
	if sess.IsExpired || sess.Elapsed(s.clock.Now()) {
		if err := s.markExpired(ctx, sess); err != nil {
			return err
		}
		return ErrGone
	}
	return nil
}

func (s *SessionService) markExpired(ctx context.Context, sess *model.TestSession) error {
	now := s.clock.Now()
	changed, err := s.sessions.MarkExpired(ctx, sess.ID, now)
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	if !changed {
		return nil
	}
	sess.IsExpired = true

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Int64("student_id", sess.StudentID).
		Int64("test_id", sess.TestID).
		Msg("Session expired")

	s.events.Publish(ctx, model.SessionEvent{
		Type:      model.EventSessionExpired,
		SessionID: sess.ID,
		TestID:    sess.TestID,
		StudentID: sess.StudentID,
		At:        now,
	})
	return nil
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the derived lifecycle state of a test session.
type SessionState string

const (
	SessionStateActive    SessionState = "ACTIVE"
	SessionStateExpired   SessionState = "EXPIRED"
	SessionStateCompleted SessionState = "COMPLETED"
)

// TestSession is a student's in-progress, server-timed attempt at a test.
type TestSession struct {
	ID          uuid.UUID         `json:"session_id"`
	TestID      int64             `json:"test_id"`
	StudentID   int64             `json:"student_id"`
	StartedAt   time.Time         `json:"started_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Answers     map[string]string `json:"answers"`
	IsCompleted bool              `json:"is_completed"`
	IsExpired   bool              `json:"is_expired"`

	WarningCount     int  `json:"warning_count"`
	UnbanPromptShown bool `json:"unban_prompt_shown"`

	// AttemptID is set once the session has been finalized into a TestAttempt.
	AttemptID *int64    `json:"attempt_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State derives the lifecycle state. Completion wins over expiry.
func (s *TestSession) State() SessionState {
	switch {
	case s.IsCompleted:
		return SessionStateCompleted
	case s.IsExpired:
		return SessionStateExpired
	default:
		return SessionStateActive
	}
}

// Finalized reports whether an attempt has already been produced from this session.
func (s *TestSession) Finalized() bool {
	return s.IsCompleted || s.AttemptID != nil
}

// TimeRemaining returns the time left before the deadline, zero once terminal or past due.
func (s *TestSession) TimeRemaining(now time.Time) time.Duration {
	if s.IsCompleted || s.IsExpired {
		return 0
	}
	left := s.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Elapsed reports whether the deadline has passed at now.
func (s *TestSession) Elapsed(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionView is the API projection of a session.
type SessionView struct {
	*TestSession
	State            SessionState `json:"state"`
	RemainingSeconds int64        `json:"time_remaining"`
}

// NewSessionView projects s at the given instant.
func NewSessionView(s *TestSession, now time.Time) SessionView {
	return SessionView{
		TestSession:      s,
		State:            s.State(),
		RemainingSeconds: int64(s.TimeRemaining(now) / time.Second),
	}
}

// UpdateAnswersRequest carries a partial or full answer map.
type UpdateAnswersRequest struct {
	Answers map[string]string `json:"answers" binding:"required,min=1,dive,keys,question_id,endkeys,max=4000"`
}

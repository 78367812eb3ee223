package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/testplatform-backend/internal/model"
)

// SessionStore persists test sessions.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error)
	// GetOpen returns the session for the pair that has not yet been finalized into an attempt.
	GetOpen(ctx context.Context, studentID, testID int64) (*model.TestSession, error)
	// Create returns ErrConflict when an open session already exists for the pair.
	Create(ctx context.Context, s *model.TestSession) error
	// MergeAnswers merges delta into the stored answers of a live session.
	// Returns ErrNotFound when no live session matched.
	MergeAnswers(ctx context.Context, id uuid.UUID, delta map[string]string, now time.Time) (*model.TestSession, error)
	// MarkExpired flips the expired flag on an unfinished session and reports whether it changed.
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// IncrementWarnings bumps the warning counter. escalated is true only for the
	// call that first raised the prompt flag.
	IncrementWarnings(ctx context.Context, id uuid.UUID, threshold int, now time.Time) (count int, escalated bool, err error)
	// ListExpired returns unfinalized sessions whose deadline is at or before now
	// and that sort after the cursor, ordered by (expires_at, id).
	ListExpired(ctx context.Context, now time.Time, after SweepCursor, limit int) ([]model.TestSession, error)
	ListActiveByStudent(ctx context.Context, studentID int64, now time.Time) ([]model.TestSession, error)
	// ListByTest returns the most recent sessions of a test, newest first.
	ListByTest(ctx context.Context, testID int64, limit int) ([]model.TestSession, error)
}

// SweepCursor is the (expires_at, id) key of the last session a sweep page
// returned. The zero value starts at the oldest deadline.
type SweepCursor struct {
	ExpiresAt time.Time
	ID        uuid.UUID
}

// After returns the cursor positioned on s.
func After(s *model.TestSession) SweepCursor {
	return SweepCursor{ExpiresAt: s.ExpiresAt, ID: s.ID}
}

// TestStore reads tests and their questions.
type TestStore interface {
	GetByID(ctx context.Context, id int64) (*model.Test, error)
	ListQuestions(ctx context.Context, testID int64) ([]model.Question, error)
}

// AttemptStore reads permanent attempts.
type AttemptStore interface {
	GetByStudentAndTest(ctx context.Context, studentID, testID int64) (*model.TestAttempt, error)
	Exists(ctx context.Context, studentID, testID int64) (bool, error)
}

// UserStore reads and creates accounts.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	GetOwnedTest(ctx context.Context, studentID, testID int64) (*model.OwnedTest, error)
}

// WarningStore persists anti-cheat warning logs.
type WarningStore interface {
	Insert(ctx context.Context, w *model.WarningLog) error
	BulkInsert(ctx context.Context, logs []model.WarningLog) (int64, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.WarningLog, error)
}

// FinalizeFunc runs inside RunLocked with the session row held exclusively.
type FinalizeFunc func(ctx context.Context, tx FinalizeTx, s *model.TestSession) error

// Finalizer runs a unit of work under an exclusive per-session lock.
// Lock acquisition fails fast with ErrLockContention.
type Finalizer interface {
	RunLocked(ctx context.Context, sessionID uuid.UUID, fn FinalizeFunc) error
}

// FinalizeTx is the set of writes performed when a session becomes an attempt.
// Nothing is visible to other callers until RunLocked returns nil.
type FinalizeTx interface {
	// UpsertAttempt writes the attempt keyed by (student, test), filling a.ID.
	// inserted is false when an existing attempt was overwritten.
	UpsertAttempt(ctx context.Context, a *model.TestAttempt) (inserted bool, err error)
	MarkFinalized(ctx context.Context, sessionID uuid.UUID, attemptID int64, completed, expired bool, at time.Time) error
	UpdateStudentStats(ctx context.Context, studentID int64, score float64) error
	CreditStars(ctx context.Context, studentID int64, amount int, reason model.StarReason, testID *int64, at time.Time) error
	// ClaimRefund marks an owned, unrefunded test as refunded and returns the price paid.
	// Returns 0 when there is nothing to refund.
	ClaimRefund(ctx context.Context, studentID, testID int64) (int, error)
}

// QuotaCounter tracks how many sessions a student opened on a given day.
type QuotaCounter interface {
	// Reserve increments the day's counter and reports whether it stayed within limit.
	// A reservation over the limit is rolled back before returning.
	Reserve(ctx context.Context, studentID int64, day time.Time, limit int) (bool, error)
	Release(ctx context.Context, studentID int64, day time.Time) error
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/testplatform-backend/internal/model"
)

// TestAttemptRepository handles attempts and the locked finalize transaction.
type TestAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewTestAttemptRepository creates a new TestAttemptRepository.
func NewTestAttemptRepository(pool *pgxpool.Pool) *TestAttemptRepository {
	return &TestAttemptRepository{pool: pool}
}

var (
	_ AttemptStore = (*TestAttemptRepository)(nil)
	_ Finalizer    = (*TestAttemptRepository)(nil)
)

// GetByStudentAndTest retrieves the attempt for a student-test pair.
func (r *TestAttemptRepository) GetByStudentAndTest(ctx context.Context, studentID, testID int64) (*model.TestAttempt, error) {
	a := &model.TestAttempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, student_id, test_id, answers, score, submitted_at, time_taken
		 FROM test_attempts WHERE student_id = $1 AND test_id = $2`, studentID, testID,
	).Scan(&a.ID, &a.StudentID, &a.TestID, &a.Answers, &a.Score, &a.SubmittedAt, &a.TimeTaken)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// Exists reports whether the student already has an attempt for the test.
func (r *TestAttemptRepository) Exists(ctx context.Context, studentID, testID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM test_attempts WHERE student_id = $1 AND test_id = $2)`,
		studentID, testID,
	).Scan(&exists)
	if err != nil {
		return false, translate(err)
	}
	return exists, nil
}

// RunLocked locks the session row with NOWAIT and runs fn in the same
// transaction. A held lock surfaces as ErrLockContention.
func (r *TestAttemptRepository) RunLocked(ctx context.Context, sessionID uuid.UUID, fn FinalizeFunc) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	s, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE id = $1 FOR UPDATE NOWAIT`, sessionID))
	if err != nil {
		return err
	}

	if err := fn(ctx, &finalizeTx{tx: tx}, s); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return translate(err)
	}
	return nil
}

type finalizeTx struct {
	tx pgx.Tx
}

func (f *finalizeTx) UpsertAttempt(ctx context.Context, a *model.TestAttempt) (bool, error) {
	payload, err := json.Marshal(a.Answers)
	if err != nil {
		return false, fmt.Errorf("encode answers: %w", err)
	}
	var inserted bool
	err = f.tx.QueryRow(ctx,
		`INSERT INTO test_attempts (student_id, test_id, answers, score, submitted_at, time_taken)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6)
		 ON CONFLICT (student_id, test_id) DO UPDATE
		 SET answers = EXCLUDED.answers,
		     score = EXCLUDED.score,
		     submitted_at = EXCLUDED.submitted_at,
		     time_taken = EXCLUDED.time_taken
		 RETURNING id, (xmax = 0)`,
		a.StudentID, a.TestID, string(payload), a.Score, a.SubmittedAt, a.TimeTaken,
	).Scan(&a.ID, &inserted)
	if err != nil {
		return false, translate(err)
	}
	return inserted, nil
}

func (f *finalizeTx) MarkFinalized(ctx context.Context, sessionID uuid.UUID, attemptID int64, completed, expired bool, at time.Time) error {
	var completedAt *time.Time
	if completed {
		completedAt = &at
	}
	_, err := f.tx.Exec(ctx,
		`UPDATE test_sessions
		 SET attempt_id = $2,
		     is_completed = is_completed OR $3,
		     is_expired = is_expired OR $4,
		     completed_at = COALESCE($5, completed_at),
		     updated_at = $6
		 WHERE id = $1`,
		sessionID, attemptID, completed, expired, completedAt, at)
	return translate(err)
}

func (f *finalizeTx) UpdateStudentStats(ctx context.Context, studentID int64, score float64) error {
	_, err := f.tx.Exec(ctx,
		`UPDATE users
		 SET average_score = (average_score * total_tests_taken + $2) / (total_tests_taken + 1),
		     total_tests_taken = total_tests_taken + 1
		 WHERE id = $1`, studentID, score)
	return translate(err)
}

func (f *finalizeTx) CreditStars(ctx context.Context, studentID int64, amount int, reason model.StarReason, testID *int64, at time.Time) error {
	if _, err := f.tx.Exec(ctx,
		`UPDATE users SET stars = stars + $2 WHERE id = $1`, studentID, amount); err != nil {
		return translate(err)
	}
	_, err := f.tx.Exec(ctx,
		`INSERT INTO star_transactions (student_id, amount, reason, test_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`, studentID, amount, reason, testID, at)
	return translate(err)
}

func (f *finalizeTx) ClaimRefund(ctx context.Context, studentID, testID int64) (int, error) {
	var price int
	err := f.tx.QueryRow(ctx,
		`UPDATE student_tests
		 SET refunded = TRUE
		 WHERE student_id = $1 AND test_id = $2 AND refunded = FALSE AND price_paid > 0
		 RETURNING price_paid`, studentID, testID,
	).Scan(&price)
	if err != nil {
		// Nothing to refund when the purchase is free or already claimed.
		return 0, missingOK(err)
	}
	return price, nil
}

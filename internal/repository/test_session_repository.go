package repository

import (
	"context"
	"errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/testplatform-backend/internal/model"
)

const sessionColumns = `id, test_id, student_id, started_at, expires_at, completed_at, answers,
	is_completed, is_expired, warning_count, unban_prompt_shown, attempt_id, created_at, updated_at`

// TestSessionRepository handles test session data access.
type TestSessionRepository struct {
	pool *pgxpool.Pool
}

// NewTestSessionRepository creates a new TestSessionRepository.
func NewTestSessionRepository(pool *pgxpool.Pool) *TestSessionRepository {
	return &TestSessionRepository{pool: pool}
}

var _ SessionStore = (*TestSessionRepository)(nil)

func scanSession(row pgx.Row) (*model.TestSession, error) {
	s := &model.TestSession{}
	err := row.Scan(
		&s.ID, &s.TestID, &s.StudentID, &s.StartedAt, &s.ExpiresAt, &s.CompletedAt, &s.Answers,
		&s.IsCompleted, &s.IsExpired, &s.WarningCount, &s.UnbanPromptShown, &s.AttemptID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	return s, nil
}

func collectSessions(rows pgx.Rows) ([]model.TestSession, error) {
	defer rows.Close()
	var sessions []model.TestSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, translate(rows.Err())
}

// GetByID retrieves a session by its identifier.
func (r *TestSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TestSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE id = $1`, id))
}

// GetOpen retrieves the unfinalized session for a student-test pair.
func (r *TestSessionRepository) GetOpen(ctx context.Context, studentID, testID int64) (*model.TestSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM test_sessions
		 WHERE student_id = $1 AND test_id = $2 AND attempt_id IS NULL`, studentID, testID))
}

// Create inserts a new session. The partial unique index on open sessions
// turns a concurrent start into ErrConflict.
func (r *TestSessionRepository) Create(ctx context.Context, s *model.TestSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO test_sessions (id, test_id, student_id, started_at, expires_at, answers)
		 VALUES ($1, $2, $3, $4, $5, '{}'::jsonb)
		 ON CONFLICT (student_id, test_id) WHERE attempt_id IS NULL DO NOTHING
		 RETURNING created_at, updated_at`,
		s.ID, s.TestID, s.StudentID, s.StartedAt, s.ExpiresAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		// DO NOTHING returns no row when an open session already exists.
		if err = translate(err); errors.Is(err, ErrNotFound) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// MergeAnswers applies delta with jsonb concatenation so disjoint keys from
// concurrent writers are never lost.
func (r *TestSessionRepository) MergeAnswers(ctx context.Context, id uuid.UUID, delta map[string]string, now time.Time) (*model.TestSession, error) {
	payload, err := json.Marshal(delta)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}
	return scanSession(r.pool.QueryRow(ctx,
		`UPDATE test_sessions
		 SET answers = answers || $2::jsonb, updated_at = $3
		 WHERE id = $1
		   AND is_completed = FALSE AND is_expired = FALSE AND attempt_id IS NULL
		   AND expires_at > $3
		 RETURNING `+sessionColumns,
		id, string(payload), now))
}

// MarkExpired flags an unfinished session as expired.
func (r *TestSessionRepository) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE test_sessions
		 SET is_expired = TRUE, updated_at = $2
		 WHERE id = $1 AND is_completed = FALSE AND is_expired = FALSE`, id, now)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementWarnings bumps warning_count and raises the prompt flag at threshold.
func (r *TestSessionRepository) IncrementWarnings(ctx context.Context, id uuid.UUID, threshold int, now time.Time) (int, bool, error) {
	var count int
	var escalated bool
	err := r.pool.QueryRow(ctx,
		`WITH prev AS (
			SELECT id, unban_prompt_shown FROM test_sessions WHERE id = $1 FOR UPDATE
		 )
		 UPDATE test_sessions t
		 SET warning_count = t.warning_count + 1,
		     unban_prompt_shown = t.unban_prompt_shown OR t.warning_count + 1 >= $2,
		     updated_at = $3
		 FROM prev
		 WHERE t.id = prev.id
		 RETURNING t.warning_count, (t.unban_prompt_shown AND NOT prev.unban_prompt_shown)`,
		id, threshold, now,
	).Scan(&count, &escalated)
	if err != nil {
		return 0, false, translate(err)
	}
	return count, escalated, nil
}

// ListExpired returns sessions past their deadline that still lack an attempt,
// keyset-paged on (expires_at, id).
func (r *TestSessionRepository) ListExpired(ctx context.Context, now time.Time, after SweepCursor, limit int) ([]model.TestSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM test_sessions
		 WHERE is_completed = FALSE AND attempt_id IS NULL AND expires_at <= $1
		   AND (expires_at, id) > ($2::timestamptz, $3::uuid)
		 ORDER BY expires_at, id
		 LIMIT $4`, now, after.ExpiresAt, after.ID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return collectSessions(rows)
}

// ListActiveByStudent returns the student's live sessions.
func (r *TestSessionRepository) ListActiveByStudent(ctx context.Context, studentID int64, now time.Time) ([]model.TestSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM test_sessions
		 WHERE student_id = $1
		   AND is_completed = FALSE AND is_expired = FALSE AND attempt_id IS NULL
		   AND expires_at > $2
		 ORDER BY started_at DESC`, studentID, now)
	if err != nil {
		return nil, translate(err)
	}
	return collectSessions(rows)
}

// ListByTest returns the newest sessions of a test for the live monitor.
func (r *TestSessionRepository) ListByTest(ctx context.Context, testID int64, limit int) ([]model.TestSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM test_sessions
		 WHERE test_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`, testID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return collectSessions(rows)
}

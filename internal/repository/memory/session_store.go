package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
)

type sessionStore struct {
	db *DB
}

// NewSessionStore returns a SessionStore backed by db.
func NewSessionStore(db *DB) repository.SessionStore {
	return &sessionStore{db: db}
}

func open(s *model.TestSession) bool {
	return s.AttemptID == nil
}

func live(s *model.TestSession, now time.Time) bool {
	return !s.IsCompleted && !s.IsExpired && s.AttemptID == nil && s.ExpiresAt.After(now)
}

func (st *sessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.TestSession, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	if s, ok := st.db.sessions[id]; ok {
		return cloneSession(s), nil
	}
	return nil, repository.ErrNotFound
}

func (st *sessionStore) GetOpen(_ context.Context, studentID, testID int64) (*model.TestSession, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	for _, s := range st.db.sessions {
		if s.StudentID == studentID && s.TestID == testID && open(s) {
			return cloneSession(s), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (st *sessionStore) Create(_ context.Context, s *model.TestSession) error {
	st.db.mu.Lock()
	defer st.db.mu.Unlock()
	for _, existing := range st.db.sessions {
		if existing.StudentID == s.StudentID && existing.TestID == s.TestID && open(existing) {
			return repository.ErrConflict
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	s.CreatedAt = s.StartedAt
	s.UpdatedAt = s.StartedAt
	st.db.sessions[s.ID] = cloneSession(s)
	return nil
}

// MergeAnswers waits out a finalize holding the row, like an UPDATE behind
// FOR UPDATE, and then sees the finalized session.
func (st *sessionStore) MergeAnswers(_ context.Context, id uuid.UUID, delta map[string]string, now time.Time) (*model.TestSession, error) {
	row := st.db.rowLock(id)
	row.Lock()
	defer row.Unlock()

	st.db.mu.Lock()
	defer st.db.mu.Unlock()
	s, ok := st.db.sessions[id]
	if !ok || !live(s, now) {
		return nil, repository.ErrNotFound
	}
	for k, v := range delta {
		s.Answers[k] = v
	}
	s.UpdatedAt = now
	return cloneSession(s), nil
}

func (st *sessionStore) MarkExpired(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	st.db.mu.Lock()
	defer st.db.mu.Unlock()
	s, ok := st.db.sessions[id]
	if !ok || s.IsCompleted || s.IsExpired {
		return false, nil
	}
	s.IsExpired = true
	s.UpdatedAt = now
	return true, nil
}

func (st *sessionStore) IncrementWarnings(_ context.Context, id uuid.UUID, threshold int, now time.Time) (int, bool, error) {
	st.db.mu.Lock()
	defer st.db.mu.Unlock()
	s, ok := st.db.sessions[id]
	if !ok {
		return 0, false, repository.ErrNotFound
	}
	s.WarningCount++
	escalated := false
	if !s.UnbanPromptShown && s.WarningCount >= threshold {
		s.UnbanPromptShown = true
		escalated = true
	}
	s.UpdatedAt = now
	return s.WarningCount, escalated, nil
}

// sweepOrder compares sessions by (expires_at, id) the way Postgres orders them.
func sweepOrder(expiresAt time.Time, id uuid.UUID, c repository.SweepCursor) int {
	if n := expiresAt.Compare(c.ExpiresAt); n != 0 {
		return n
	}
	return bytes.Compare(id[:], c.ID[:])
}

func (st *sessionStore) ListExpired(_ context.Context, now time.Time, after repository.SweepCursor, limit int) ([]model.TestSession, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	var out []model.TestSession
	for _, s := range st.db.sessions {
		if !s.IsCompleted && s.AttemptID == nil && !s.ExpiresAt.After(now) && sweepOrder(s.ExpiresAt, s.ID, after) > 0 {
			out = append(out, *cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return sweepOrder(out[i].ExpiresAt, out[i].ID, repository.After(&out[j])) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (st *sessionStore) ListActiveByStudent(_ context.Context, studentID int64, now time.Time) ([]model.TestSession, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	var out []model.TestSession
	for _, s := range st.db.sessions {
		if s.StudentID == studentID && live(s, now) {
			out = append(out, *cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (st *sessionStore) ListByTest(_ context.Context, testID int64, limit int) ([]model.TestSession, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	var out []model.TestSession
	for _, s := range st.db.sessions {
		if s.TestID == testID {
			out = append(out, *cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

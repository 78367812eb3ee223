package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
)

// ─── Tests ──────────────────────────────────────────────────────────────────

type testStore struct {
	db *DB
}

// NewTestStore returns a TestStore backed by db.
func NewTestStore(db *DB) repository.TestStore {
	return &testStore{db: db}
}

func (st *testStore) GetByID(_ context.Context, id int64) (*model.Test, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	if t, ok := st.db.tests[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (st *testStore) ListQuestions(_ context.Context, testID int64) ([]model.Question, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	qs := st.db.questions[testID]
	out := make([]model.Question, len(qs))
	copy(out, qs)
	return out, nil
}

// ─── Users ──────────────────────────────────────────────────────────────────

type userStore struct {
	db *DB
}

// NewUserStore returns a UserStore backed by db.
func NewUserStore(db *DB) repository.UserStore {
	return &userStore{db: db}
}

func (st *userStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	if u, ok := st.db.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (st *userStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	for _, u := range st.db.users {
		if strings.EqualFold(u.Username, username) {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (st *userStore) Create(ctx context.Context, u *model.User) error {
	if _, err := st.GetByUsername(ctx, u.Username); err == nil {
		return repository.ErrConflict
	}
	*u = st.db.PutUser(*u)
	return nil
}

func (st *userStore) GetOwnedTest(_ context.Context, studentID, testID int64) (*model.OwnedTest, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	if o, ok := st.db.ownedTests[pairKey{studentID, testID}]; ok {
		c := *o
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

// ─── Warnings ───────────────────────────────────────────────────────────────

type warningStore struct {
	db *DB
}

// NewWarningStore returns a WarningStore backed by db.
func NewWarningStore(db *DB) repository.WarningStore {
	return &warningStore{db: db}
}

func (st *warningStore) Insert(_ context.Context, w *model.WarningLog) error {
	st.db.mu.Lock()
	defer st.db.mu.Unlock()
	st.db.nextWarningID++
	w.ID = st.db.nextWarningID
	st.db.warnings = append(st.db.warnings, *w)
	return nil
}

func (st *warningStore) BulkInsert(ctx context.Context, logs []model.WarningLog) (int64, error) {
	for i := range logs {
		if err := st.Insert(ctx, &logs[i]); err != nil {
			return int64(i), err
		}
	}
	return int64(len(logs)), nil
}

func (st *warningStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.WarningLog, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	var out []model.WarningLog
	for _, w := range st.db.warnings {
		if w.SessionID == sessionID {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ─── Quota ──────────────────────────────────────────────────────────────────

type quotaCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewQuotaCounter returns a process-local QuotaCounter.
func NewQuotaCounter() repository.QuotaCounter {
	return &quotaCounter{counts: make(map[string]int)}
}

func (q *quotaCounter) Reserve(_ context.Context, studentID int64, day time.Time, limit int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := config.CacheKey.StudentDailySessionsKey(studentID, day)
	if q.counts[key] >= limit {
		return false, nil
	}
	q.counts[key]++
	return true, nil
}

func (q *quotaCounter) Release(_ context.Context, studentID int64, day time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := config.CacheKey.StudentDailySessionsKey(studentID, day)
	if q.counts[key] > 0 {
		q.counts[key]--
	}
	return nil
}

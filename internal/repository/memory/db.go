// Package memory provides process-local stores for development and tests.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/testplatform-backend/internal/model"
)

type pairKey struct {
	studentID int64
	testID    int64
}

// DB holds every table of the in-memory backend behind one mutex.
type DB struct {
	mu sync.RWMutex

	users      map[int64]*model.User
	tests      map[int64]*model.Test
	questions  map[int64][]model.Question
	ownedTests map[pairKey]*model.OwnedTest
	sessions   map[uuid.UUID]*model.TestSession
	attempts   map[pairKey]*model.TestAttempt
	warnings   []model.WarningLog
	ledger     []model.StarTransaction

	// rowLocks emulates SELECT ... FOR UPDATE NOWAIT per session.
	rowLocks map[uuid.UUID]*sync.Mutex

	nextUserID    int64
	nextAttemptID int64
	nextWarningID int64
	nextLedgerID  int64
}

// NewDB returns an empty database.
func NewDB() *DB {
	return &DB{
		users:      make(map[int64]*model.User),
		tests:      make(map[int64]*model.Test),
		questions:  make(map[int64][]model.Question),
		ownedTests: make(map[pairKey]*model.OwnedTest),
		sessions:   make(map[uuid.UUID]*model.TestSession),
		attempts:   make(map[pairKey]*model.TestAttempt),
		rowLocks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// PutUser inserts or replaces a user. A zero ID is assigned.
func (db *DB) PutUser(u model.User) model.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u.ID == 0 {
		db.nextUserID++
		u.ID = db.nextUserID
	} else if u.ID > db.nextUserID {
		db.nextUserID = u.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	db.users[u.ID] = &u
	return u
}

// PutTest inserts or replaces a test with its questions.
func (db *DB) PutTest(t model.Test, questions ...model.Question) {
	db.mu.Lock()
	defer db.mu.Unlock()
	tc := t
	db.tests[t.ID] = &tc
	qs := make([]model.Question, len(questions))
	for i, q := range questions {
		q.TestID = t.ID
		qs[i] = q
	}
	db.questions[t.ID] = qs
}

// PutOwnedTest records a star purchase.
func (db *DB) PutOwnedTest(o model.OwnedTest) {
	db.mu.Lock()
	defer db.mu.Unlock()
	oc := o
	db.ownedTests[pairKey{o.StudentID, o.TestID}] = &oc
}

// PutSession inserts or replaces a session as-is.
func (db *DB) PutSession(s model.TestSession) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.sessions[s.ID] = cloneSession(&s)
}

// PutAttempt inserts or replaces the attempt of a student-test pair. A zero ID is assigned.
func (db *DB) PutAttempt(a model.TestAttempt) model.TestAttempt {
	db.mu.Lock()
	defer db.mu.Unlock()
	if a.ID == 0 {
		db.nextAttemptID++
		a.ID = db.nextAttemptID
	} else if a.ID > db.nextAttemptID {
		db.nextAttemptID = a.ID
	}
	db.attempts[pairKey{a.StudentID, a.TestID}] = &a
	return a
}

// Attempts returns all attempts ordered by ID.
func (db *DB) Attempts() []model.TestAttempt {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]model.TestAttempt, 0, len(db.attempts))
	for _, a := range db.attempts {
		out = append(out, cloneAttempt(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StarTransactions returns the ledger entries of a student.
func (db *DB) StarTransactions(studentID int64) []model.StarTransaction {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []model.StarTransaction
	for _, t := range db.ledger {
		if t.StudentID == studentID {
			out = append(out, t)
		}
	}
	return out
}

func (db *DB) rowLock(id uuid.UUID) *sync.Mutex {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.rowLocks[id]
	if !ok {
		l = &sync.Mutex{}
		db.rowLocks[id] = l
	}
	return l
}

func cloneSession(s *model.TestSession) *model.TestSession {
	c := *s
	c.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.AttemptID != nil {
		id := *s.AttemptID
		c.AttemptID = &id
	}
	return &c
}

func cloneAttempt(a *model.TestAttempt) model.TestAttempt {
	c := *a
	c.Answers = make(map[string]string, len(a.Answers))
	for k, v := range a.Answers {
		c.Answers[k] = v
	}
	return c
}

package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
)

// AttemptStore serves attempts and the locked finalize unit of work.
type AttemptStore struct {
	db *DB
}

// NewAttemptStore returns an AttemptStore backed by db.
func NewAttemptStore(db *DB) *AttemptStore {
	return &AttemptStore{db: db}
}

var (
	_ repository.AttemptStore = (*AttemptStore)(nil)
	_ repository.Finalizer    = (*AttemptStore)(nil)
)

func (st *AttemptStore) GetByStudentAndTest(_ context.Context, studentID, testID int64) (*model.TestAttempt, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	if a, ok := st.db.attempts[pairKey{studentID, testID}]; ok {
		c := cloneAttempt(a)
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (st *AttemptStore) Exists(_ context.Context, studentID, testID int64) (bool, error) {
	st.db.mu.RLock()
	defer st.db.mu.RUnlock()
	_, ok := st.db.attempts[pairKey{studentID, testID}]
	return ok, nil
}

// RunLocked try-locks the session and buffers every write until fn returns nil.
func (st *AttemptStore) RunLocked(ctx context.Context, sessionID uuid.UUID, fn repository.FinalizeFunc) error {
	lock := st.db.rowLock(sessionID)
	if !lock.TryLock() {
		return repository.ErrLockContention
	}
	defer lock.Unlock()

	st.db.mu.RLock()
	s, ok := st.db.sessions[sessionID]
	var snapshot *model.TestSession
	if ok {
		snapshot = cloneSession(s)
	}
	st.db.mu.RUnlock()
	if !ok {
		return repository.ErrNotFound
	}

	tx := &memTx{db: st.db}
	if err := fn(ctx, tx, snapshot); err != nil {
		return err
	}
	return tx.commit()
}

// memTx records writes as closures applied atomically on commit.
type memTx struct {
	db     *DB
	checks []func() error
	ops    []func()
}

func (tx *memTx) commit() error {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for _, check := range tx.checks {
		if err := check(); err != nil {
			return err
		}
	}
	for _, op := range tx.ops {
		op()
	}
	return nil
}

func (tx *memTx) UpsertAttempt(_ context.Context, a *model.TestAttempt) (bool, error) {
	key := pairKey{a.StudentID, a.TestID}

	tx.db.mu.Lock()
	existing, found := tx.db.attempts[key]
	if found {
		a.ID = existing.ID
	} else {
		tx.db.nextAttemptID++
		a.ID = tx.db.nextAttemptID
	}
	tx.db.mu.Unlock()

	row := cloneAttempt(a)
	if !found {
		tx.checks = append(tx.checks, func() error {
			if _, taken := tx.db.attempts[key]; taken {
				return repository.ErrConflict
			}
			return nil
		})
	}
	tx.ops = append(tx.ops, func() {
		r := row
		tx.db.attempts[key] = &r
	})
	return !found, nil
}

func (tx *memTx) MarkFinalized(_ context.Context, sessionID uuid.UUID, attemptID int64, completed, expired bool, at time.Time) error {
	tx.ops = append(tx.ops, func() {
		s, ok := tx.db.sessions[sessionID]
		if !ok {
			return
		}
		id := attemptID
		s.AttemptID = &id
		if completed {
			s.IsCompleted = true
			t := at
			s.CompletedAt = &t
		}
		if expired {
			s.IsExpired = true
		}
		s.UpdatedAt = at
	})
	return nil
}

func (tx *memTx) UpdateStudentStats(_ context.Context, studentID int64, score float64) error {
	tx.ops = append(tx.ops, func() {
		u, ok := tx.db.users[studentID]
		if !ok {
			return
		}
		total := float64(u.TotalTestsTaken)
		u.AverageScore = (u.AverageScore*total + score) / (total + 1)
		u.TotalTestsTaken++
	})
	return nil
}

func (tx *memTx) CreditStars(_ context.Context, studentID int64, amount int, reason model.StarReason, testID *int64, at time.Time) error {
	tx.ops = append(tx.ops, func() {
		if u, ok := tx.db.users[studentID]; ok {
			u.Stars += amount
		}
		tx.db.nextLedgerID++
		tx.db.ledger = append(tx.db.ledger, model.StarTransaction{
			ID:        tx.db.nextLedgerID,
			StudentID: studentID,
			Amount:    amount,
			Reason:    reason,
			TestID:    testID,
			CreatedAt: at,
		})
	})
	return nil
}

func (tx *memTx) ClaimRefund(_ context.Context, studentID, testID int64) (int, error) {
	key := pairKey{studentID, testID}

	tx.db.mu.RLock()
	o, ok := tx.db.ownedTests[key]
	price := 0
	if ok && !o.Refunded && o.PricePaid > 0 {
		price = o.PricePaid
	}
	tx.db.mu.RUnlock()
	if price == 0 {
		return 0, nil
	}

	tx.checks = append(tx.checks, func() error {
		if tx.db.ownedTests[key].Refunded {
			return repository.ErrConflict
		}
		return nil
	})
	tx.ops = append(tx.ops, func() {
		tx.db.ownedTests[key].Refunded = true
	})
	return price, nil
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
)

var now = time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)

func seedSession(t *testing.T, db *DB) *model.TestSession {
	t.Helper()
	s := &model.TestSession{TestID: 1, StudentID: 2, StartedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, NewSessionStore(db).Create(context.Background(), s))
	return s
}

func TestCreateRejectsSecondOpenSession(t *testing.T) {
	db := NewDB()
	st := NewSessionStore(db)
	first := seedSession(t, db)

	err := st.Create(context.Background(), &model.TestSession{TestID: 1, StudentID: 2, StartedAt: now, ExpiresAt: now.Add(time.Hour)})
	assert.ErrorIs(t, err, repository.ErrConflict)

	open, err := st.GetOpen(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)
}

func TestReturnedSessionsAreCopies(t *testing.T) {
	db := NewDB()
	st := NewSessionStore(db)
	s := seedSession(t, db)

	got, err := st.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	got.Answers["1"] = "mutated"

	again, err := st.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Answers)
}

func TestMergeAnswersRequiresLiveSession(t *testing.T) {
	db := NewDB()
	st := NewSessionStore(db)
	s := seedSession(t, db)
	ctx := context.Background()

	_, err := st.MergeAnswers(ctx, s.ID, map[string]string{"1": "a"}, now.Add(time.Hour))
	assert.ErrorIs(t, err, repository.ErrNotFound, "deadline reached")

	changed, err := st.MarkExpired(ctx, s.ID, now)
	require.NoError(t, err)
	assert.True(t, changed)
	_, err = st.MergeAnswers(ctx, s.ID, map[string]string{"1": "a"}, now)
	assert.ErrorIs(t, err, repository.ErrNotFound, "expired flag set")
}

func TestRunLockedContention(t *testing.T) {
	db := NewDB()
	s := seedSession(t, db)
	store := NewAttemptStore(db)
	ctx := context.Background()

	inner := make(chan error, 1)
	err := store.RunLocked(ctx, s.ID, func(ctx context.Context, _ repository.FinalizeTx, _ *model.TestSession) error {
		inner <- store.RunLocked(ctx, s.ID, func(context.Context, repository.FinalizeTx, *model.TestSession) error {
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, <-inner, repository.ErrLockContention)

	err = store.RunLocked(ctx, uuid.New(), func(context.Context, repository.FinalizeTx, *model.TestSession) error {
		return nil
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMergeAnswersWaitsForFinalize(t *testing.T) {
	db := NewDB()
	db.PutUser(model.User{ID: 2, Username: "siswa", Role: model.RoleStudent})
	s := seedSession(t, db)
	st := NewSessionStore(db)
	store := NewAttemptStore(db)
	ctx := context.Background()

	_, err := st.MergeAnswers(ctx, s.ID, map[string]string{"1": "a"}, now)
	require.NoError(t, err)

	merged := make(chan error, 1)
	err = store.RunLocked(ctx, s.ID, func(ctx context.Context, tx repository.FinalizeTx, locked *model.TestSession) error {
		go func() {
			_, err := st.MergeAnswers(ctx, s.ID, map[string]string{"2": "late"}, now)
			merged <- err
		}()
		select {
		case err := <-merged:
			t.Errorf("merge ran while the row was locked: %v", err)
			merged <- err
		case <-time.After(50 * time.Millisecond):
		}

		a := &model.TestAttempt{StudentID: locked.StudentID, TestID: locked.TestID, Answers: locked.Answers, SubmittedAt: now}
		if _, err := tx.UpsertAttempt(ctx, a); err != nil {
			return err
		}
		return tx.MarkFinalized(ctx, locked.ID, a.ID, true, false, now)
	})
	require.NoError(t, err)

	assert.ErrorIs(t, <-merged, repository.ErrNotFound, "the merge sees the finalized session")

	stored, err := st.GetByID(ctx, s.ID)
	require.NoError(t, err)
	attempts := db.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, attempts[0].Answers, stored.Answers)
	assert.Equal(t, map[string]string{"1": "a"}, stored.Answers)
}

func TestRunLockedDiscardsWritesOnError(t *testing.T) {
	db := NewDB()
	db.PutUser(model.User{ID: 2, Username: "siswa", Role: model.RoleStudent})
	s := seedSession(t, db)
	store := NewAttemptStore(db)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunLocked(ctx, s.ID, func(ctx context.Context, tx repository.FinalizeTx, locked *model.TestSession) error {
		a := &model.TestAttempt{StudentID: locked.StudentID, TestID: locked.TestID, SubmittedAt: now}
		inserted, err := tx.UpsertAttempt(ctx, a)
		require.NoError(t, err)
		assert.True(t, inserted)
		require.NoError(t, tx.MarkFinalized(ctx, locked.ID, a.ID, true, false, now))
		require.NoError(t, tx.CreditStars(ctx, locked.StudentID, 5, model.StarReasonCompletionReward, nil, now))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, db.Attempts())
	assert.Empty(t, db.StarTransactions(2))
	stored, err := NewSessionStore(db).GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AttemptID)
	assert.False(t, stored.IsCompleted)
}

func TestRunLockedCommits(t *testing.T) {
	db := NewDB()
	db.PutUser(model.User{ID: 2, Username: "siswa", Role: model.RoleStudent, TotalTestsTaken: 1, AverageScore: 50})
	db.PutOwnedTest(model.OwnedTest{StudentID: 2, TestID: 1, PricePaid: 30})
	s := seedSession(t, db)
	store := NewAttemptStore(db)
	ctx := context.Background()

	err := store.RunLocked(ctx, s.ID, func(ctx context.Context, tx repository.FinalizeTx, locked *model.TestSession) error {
		a := &model.TestAttempt{StudentID: 2, TestID: 1, Score: 100, SubmittedAt: now}
		if _, err := tx.UpsertAttempt(ctx, a); err != nil {
			return err
		}
		if err := tx.MarkFinalized(ctx, locked.ID, a.ID, false, true, now); err != nil {
			return err
		}
		if err := tx.UpdateStudentStats(ctx, 2, 100); err != nil {
			return err
		}
		refund, err := tx.ClaimRefund(ctx, 2, 1)
		if err != nil {
			return err
		}
		assert.Equal(t, 30, refund)
		return tx.CreditStars(ctx, 2, refund, model.StarReasonTestRefund, nil, now)
	})
	require.NoError(t, err)

	u, err := NewUserStore(db).GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, u.TotalTestsTaken)
	assert.InDelta(t, 75.0, u.AverageScore, 1e-9)
	assert.Equal(t, 30, u.Stars)

	owned, err := NewUserStore(db).GetOwnedTest(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, owned.Refunded)

	stored, err := NewSessionStore(db).GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateExpired, stored.State())
	assert.Nil(t, stored.CompletedAt)
	require.NotNil(t, stored.AttemptID)

	_, err = NewSessionStore(db).GetOpen(ctx, 2, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound, "a finalized session is no longer open")
}

func TestQuotaCounter(t *testing.T) {
	q := NewQuotaCounter()
	ctx := context.Background()

	ok, err := q.Reserve(ctx, 1, now, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = q.Reserve(ctx, 1, now, 1)
	assert.False(t, ok)
	require.NoError(t, q.Release(ctx, 1, now))
	ok, _ = q.Reserve(ctx, 1, now, 1)
	assert.True(t, ok)
}

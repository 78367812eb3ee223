package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/testplatform-backend/internal/config"
)

func TestTranslate(t *testing.T) {
	plain := errors.New("boom")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, ErrNotFound},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, ErrLockContention},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrLockContention},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrLockContention},
		{"other pg error", &pgconn.PgError{Code: "22001"}, nil},
		{"other error", plain, plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.in)
			switch {
			case tt.in == nil:
				assert.NoError(t, got)
			case tt.want == nil:
				assert.Equal(t, tt.in, got)
			default:
				assert.ErrorIs(t, got, tt.want)
			}
		})
	}
}

func TestTranslateKeepsDriverError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "test_attempts_student_id_test_id_key"}
	got := translate(pgErr)

	var target *pgconn.PgError
	require.ErrorAs(t, got, &target)
	assert.Equal(t, "test_attempts_student_id_test_id_key", target.ConstraintName)
}

func TestMissingOK(t *testing.T) {
	assert.NoError(t, missingOK(nil))
	assert.NoError(t, missingOK(pgx.ErrNoRows))
	assert.NoError(t, missingOK(&pgconn.PgError{Code: "23503"}), "joined not-found is dropped too")
	assert.ErrorIs(t, missingOK(&pgconn.PgError{Code: "55P03"}), ErrLockContention)

	plain := errors.New("boom")
	assert.Equal(t, plain, missingOK(plain))
}

func TestQuotaRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := NewQuotaRepository(rdb)
	ctx := context.Background()
	day := time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC)
	key := config.CacheKey.StudentDailySessionsKey(9, day)

	for i := 0; i < 2; i++ {
		ok, err := q.Reserve(ctx, 9, day, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := q.Reserve(ctx, 9, day, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "2", val, "a rejected reservation is rolled back")
	assert.True(t, mr.TTL(key) > 24*time.Hour)

	require.NoError(t, q.Release(ctx, 9, day))
	ok, err = q.Reserve(ctx, 9, day, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Reserve(ctx, 9, day.Add(time.Hour), 2)
	require.NoError(t, err)
	assert.True(t, ok, "a new UTC day has its own counter")
}

func TestQuotaRepositoryReleaseNeverNegative(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := NewQuotaRepository(rdb)
	day := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	require.NoError(t, q.Release(context.Background(), 9, day))
	val, err := mr.Get(config.CacheKey.StudentDailySessionsKey(9, day))
	require.NoError(t, err)
	assert.Equal(t, "0", val)
}

package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/testplatform-backend/internal/config"
)

// quotaKeyTTL outlives the counted day so late releases still find the key.
const quotaKeyTTL = 48 * time.Hour

// QuotaRepository keeps daily session counters in Redis.
type QuotaRepository struct {
	rdb *redis.Client
}

// NewQuotaRepository creates a new QuotaRepository.
func NewQuotaRepository(rdb *redis.Client) *QuotaRepository {
	return &QuotaRepository{rdb: rdb}
}

var _ QuotaCounter = (*QuotaRepository)(nil)

// Reserve increments the student's counter for day. When the new value
// exceeds limit the increment is undone and false is returned.
func (r *QuotaRepository) Reserve(ctx context.Context, studentID int64, day time.Time, limit int) (bool, error) {
	key := config.CacheKey.StudentDailySessionsKey(studentID, day)

	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, quotaKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if incr.Val() > int64(limit) {
		if err := r.rdb.Decr(ctx, key).Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Release gives back a reservation that did not produce a session.
func (r *QuotaRepository) Release(ctx context.Context, studentID int64, day time.Time) error {
	key := config.CacheKey.StudentDailySessionsKey(studentID, day)
	n, err := r.rdb.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n < 0 {
		return r.rdb.Set(ctx, key, 0, quotaKeyTTL).Err()
	}
	return nil
}

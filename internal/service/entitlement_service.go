package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
)

// EntitlementService decides whether a student may open a new session.
type EntitlementService struct {
	users      repository.UserStore
	quota      repository.QuotaCounter
	dailyQuota int
}

// NewEntitlementService creates a new EntitlementService. A dailyQuota of
// zero disables the free-tier limit.
func NewEntitlementService(users repository.UserStore, quota repository.QuotaCounter, dailyQuota int) *EntitlementService {
	return &EntitlementService{users: users, quota: quota, dailyQuota: dailyQuota}
}

// Authorize checks premium gating, star ownership and the daily quota.
// On success the returned release func gives back the quota reservation and
// must be called if no session ends up being created.
func (e *EntitlementService) Authorize(ctx context.Context, student *model.User, t *model.Test, now time.Time) (func(), error) {
	noop := func() {}

	if student.IsBanned {
		return noop, ErrAccessDenied
	}
	premium := student.PremiumActive(now)

	if t.IsPremium && !premium {
		return noop, ErrAccessDenied
	}

	if t.StarPrice > 0 {
		if _, err := e.users.GetOwnedTest(ctx, student.ID, t.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return noop, ErrAccessDenied
			}
			return noop, fmt.Errorf("check owned test: %w", err)
		}
	}

	if premium || e.dailyQuota <= 0 {
		return noop, nil
	}

	ok, err := e.quota.Reserve(ctx, student.ID, now, e.dailyQuota)
	if err != nil {
		return noop, fmt.Errorf("reserve daily quota: %w", err)
	}
	if !ok {
		return noop, ErrQuotaExceeded
	}
	return func() {
		_ = e.quota.Release(context.WithoutCancel(ctx), student.ID, now)
	}, nil
}

package service

import (
	"errors"

	"github.com/stemsi/testplatform-backend/internal/repository"
)

// Session subsystem errors. Handlers map each one to a single response code.
var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("session does not belong to the requesting student")
	ErrAccessDenied     = errors.New("student is not entitled to this test")
	ErrGone             = errors.New("session time has expired")
	ErrAlreadyCompleted = errors.New("test already completed")
	ErrQuotaExceeded    = errors.New("daily test limit reached")
	ErrLockContention   = errors.New("session is being finalized, try again")
	ErrDuplicateAttempt = errors.New("attempt could not be recorded due to a concurrent write")
)

// notFound converts a repository miss into ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

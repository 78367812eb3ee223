package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrConflict       = errors.New("record already exists")
	ErrLockContention = errors.New("row is locked by another transaction")
)

// PostgreSQL error codes handled by the repositories.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// translate maps driver errors onto the repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Join(ErrConflict, err)
		case pgForeignKeyViolation:
			// The referenced row is gone.
			return errors.Join(ErrNotFound, err)
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return errors.Join(ErrLockContention, err)
		}
	}
	return err
}

// missingOK translates err and drops ErrNotFound.
func missingOK(err error) error {
	if err = translate(err); errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

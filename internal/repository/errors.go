package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres error codes the engine depends on: unique_violation backs the
// webhook idempotency key, lock_not_available backs fail-fast capture locks.
const (
	pqUniqueViolation  = "23505"
	pqLockNotAvailable = "55P03"
)

func IsDuplicateKey(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func IsLockNotAvailable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqLockNotAvailable
}

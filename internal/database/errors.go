package database

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateTrigger is returned by ExecutionRepository.Create when an
// execution already exists for the given (task_id, trigger_id) pair, per
// spec.md §6's idempotency requirement.
var ErrDuplicateTrigger = errors.New("database: execution already exists for this trigger")

// errNoRows is an internal sentinel distinguishing "not found" from a real
// scan error inside this package's row-scanning helpers.
var errNoRows = errors.New("database: no rows")

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}

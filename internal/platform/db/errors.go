package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/clinic/internal/platform/apperr"
)

// PostgreSQL error codes the services react to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeLockNotAvailable    = "55P03"
	codeDeadlockDetected    = "40P01"
	codeSerializationFail   = "40001"
	codeQueryCanceled       = "57014"
)

// Classify maps driver errors onto the apperr taxonomy. Errors that are
// already classified pass through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var se *apperr.StockError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, err, "record not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Wrap(apperr.KindConflict, err, "duplicate value violates "+pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return apperr.Wrap(apperr.KindInvalidState, err, "referenced record is missing or still in use")
		case codeCheckViolation:
			return apperr.Wrap(apperr.KindInvalidState, err, "value violates "+pgErr.ConstraintName)
		case codeLockNotAvailable, codeQueryCanceled:
			return apperr.Unavailable(err, "lock wait timed out")
		case codeDeadlockDetected:
			return apperr.Unavailable(err, "deadlock detected")
		case codeSerializationFail:
			return apperr.Unavailable(err, "serialization failure")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Unavailable(err, "operation timed out")
	}
	return err
}

// ConstraintName returns the violated constraint for PostgreSQL errors.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"stockledger/internal/core/apperror"
)

// PostgreSQL error codes the repositories react to.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
)

// MapError translates driver errors into AppErrors. Errors that are not
// PostgreSQL errors, or that have no mapping, are returned unchanged.
func MapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected:
		return apperror.NewConcurrentModification(pgErr.TableName, pgErr.ConstraintName).WithCause(err)
	case pgUniqueViolation:
		return apperror.NewDuplicate(pgErr.TableName, pgErr.ConstraintName, pgErr.Detail).WithCause(err)
	case pgForeignKeyViolation:
		return apperror.NewConflict("Referenced record does not exist or is still in use").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgCheckViolation:
		if pgErr.ConstraintName == "inv_items_quantity_check" {
			return apperror.NewBusinessRule(apperror.CodeInsufficientStock, "Insufficient stock").
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		}
		return apperror.NewValidation(pgErr.Message).
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	}
	return err
}

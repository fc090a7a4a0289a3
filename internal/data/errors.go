package data

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/roadmetrics/countline/internal/errors"
)

// MapDBError maps database errors to AppError instances:
//   - pgx.ErrNoRows / sql.ErrNoRows handled by callers as not-found sentinels
//   - unique violations -> Conflict (a terminal row was already written)
//   - check / not-null violations -> Validation
//   - context deadline / cancellation -> Timeout / Canceled
//   - anything else -> Persistence
//
// Unrecognized non-database errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeTimeout,
			Message: "database operation timed out",
			Cause:   err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeCanceled,
			Message: "database operation was canceled",
			Cause:   err,
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeNotFound,
			Message: "resource not found",
			Cause:   err,
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeConflict,
			Message: "record already exists",
			Cause:   pgErr,
		}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeValidation,
			Message: "record violates a database constraint",
			Cause:   pgErr,
		}
	default:
		return &apperrors.AppError{
			Code:    apperrors.ErrCodePersistence,
			Message: "database operation failed",
			Cause:   pgErr,
		}
	}
}

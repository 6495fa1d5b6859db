package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/greasedesk/greasedesk/internal/apperr"
)

// PostgreSQL error codes
const (
	pgErrCodeUniqueViolation     = "23505"
	pgErrCodeForeignKeyViolation = "23503"
)

// IsDuplicateKey reports a unique constraint violation from either driver.
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrCodeUniqueViolation
	}
	return false
}

// IsForeignKeyViolation reports a foreign key violation from either driver.
func IsForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrCodeForeignKeyViolation
	}
	return false
}

// IsNotFound reports gorm's record-not-found.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// TranslateError maps store errors onto the API taxonomy. Typed errors pass
// through unchanged; uniqueness violations become conflict (or the given
// sentinel), missing rows become not found, anything else is internal.
func TranslateError(err error, onDuplicate *apperr.Error) error {
	if err == nil {
		return nil
	}
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}
	switch {
	case IsDuplicateKey(err):
		if onDuplicate == nil {
			onDuplicate = apperr.ErrConflict
		}
		return apperr.Wrap(onDuplicate, err)
	case IsNotFound(err):
		return apperr.Wrap(apperr.ErrNotFound, err)
	default:
		return apperr.Internal(err)
	}
}

package dbx

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/minichat/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories care about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// MapError translates a driver error into the repository error vocabulary:
// unique violations become common.ErrorAlreadyExists, foreign key violations
// common.ErrorNotFound, anything else is wrapped as "db error".
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", common.ErrorAlreadyExists, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s", common.ErrorNotFound, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("db error: %w", err)
}

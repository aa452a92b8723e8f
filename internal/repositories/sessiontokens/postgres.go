package sessiontokens

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/minichat/internal/common"
	"github.com/dmitrijs2005/minichat/internal/dbx"
	"github.com/dmitrijs2005/minichat/internal/models"
)

// PostgresRepository stores session token records over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.SessionToken) error {
	query := `
		INSERT INTO session_tokens (id, user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, token.ID, token.UserID, token.IssuedAt, token.ExpiresAt); err != nil {
		return dbx.MapError(err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, id string) (*models.SessionToken, error) {
	query := `
		SELECT id, user_id, issued_at, expires_at
		FROM session_tokens
		WHERE id = $1
	`
	t := &models.SessionToken{}
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.UserID, &t.IssuedAt, &t.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.MapError(err)
	}
	return t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM session_tokens
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return dbx.MapError(err)
	}
	return nil
}

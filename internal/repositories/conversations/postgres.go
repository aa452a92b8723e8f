package conversations

import (
	"context"

	"github.com/dmitrijs2005/minichat/internal/dbx"
	"github.com/dmitrijs2005/minichat/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Conversation) (*models.Conversation, error) {
	query :=
		`INSERT INTO conversations (user_id, title)
		 VALUES ($1, $2)
		 RETURNING id, created_at
		 `

	if err := r.db.QueryRowContext(ctx, query, c.UserID, c.Title).Scan(&c.ID, &c.CreatedAt); err != nil {
		return nil, dbx.MapError(err)
	}

	return c, nil
}

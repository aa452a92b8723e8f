package messages

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/minichat/internal/dbx"
	"github.com/dmitrijs2005/minichat/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Message) (*models.Message, error) {
	query :=
		`INSERT INTO messages (conversation_id, role, content, token_count)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		m.ConversationID, string(m.Role), m.Content, m.TokenCount).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, dbx.MapError(err)
	}

	return m, nil
}

func (r *PostgresRepository) List(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		query :=
			`SELECT id, conversation_id, role, content, token_count, created_at FROM (
			   SELECT id, conversation_id, role, content, token_count, created_at
			   FROM messages
			   WHERE conversation_id = $1
			   ORDER BY id DESC
			   LIMIT $2
			 ) recent
			 ORDER BY id ASC`
		rows, err = r.db.QueryContext(ctx, query, conversationID, limit)
	} else {
		query :=
			`SELECT id, conversation_id, role, content, token_count, created_at
			 FROM messages
			 WHERE conversation_id = $1
			 ORDER BY id ASC`
		rows, err = r.db.QueryContext(ctx, query, conversationID)
	}
	if err != nil {
		return nil, dbx.MapError(err)
	}
	defer rows.Close()

	result := make([]*models.Message, 0)
	for rows.Next() {
		m := &models.Message{}
		var (
			role       string
			tokenCount sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &tokenCount, &m.CreatedAt); err != nil {
			return nil, dbx.MapError(err)
		}
		m.Role = models.MessageRole(role)
		if tokenCount.Valid {
			n := int(tokenCount.Int64)
			m.TokenCount = &n
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.MapError(err)
	}

	return result, nil
}

func (r *PostgresRepository) Truncate(ctx context.Context, conversationID int64, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	query :=
		`DELETE FROM messages
		 WHERE conversation_id = $1
		   AND id NOT IN (
		     SELECT id FROM messages
		     WHERE conversation_id = $1
		     ORDER BY id DESC
		     LIMIT $2
		   )`

	res, err := r.db.ExecContext(ctx, query, conversationID, keep)
	if err != nil {
		return 0, dbx.MapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.MapError(err)
	}
	return n, nil
}

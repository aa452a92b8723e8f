// Package messages declares the repository contract for conversation
// messages. Messages are ordered by id, which grows with insertion.
package messages

import (
	"context"

	"github.com/dmitrijs2005/minichat/internal/models"
)

type Repository interface {
	// Create appends m to its conversation and fills in ID and CreatedAt.
	// An unknown conversation yields common.ErrorNotFound.
	Create(ctx context.Context, m *models.Message) (*models.Message, error)

	// List returns a conversation's messages in insertion order. With
	// limit > 0 only the most recent limit messages are returned.
	List(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error)

	// Truncate deletes the oldest messages so that at most keep remain and
	// returns the number of rows removed.
	Truncate(ctx context.Context, conversationID int64, keep int) (int64, error)
}

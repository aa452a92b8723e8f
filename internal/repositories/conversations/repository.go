// Package conversations declares the repository contract for conversations.
package conversations

import (
	"context"

	"github.com/dmitrijs2005/minichat/internal/models"
)

type Repository interface {
	// Create inserts c and fills in ID and CreatedAt. An unknown owner yields
	// common.ErrorNotFound.
	Create(ctx context.Context, c *models.Conversation) (*models.Conversation, error)
}

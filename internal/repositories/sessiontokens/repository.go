// Package sessiontokens declares the repository contract for issued session
// tokens. Only the token id (its jti) is stored, never the signed value.
package sessiontokens

import (
	"context"

	"github.com/dmitrijs2005/minichat/internal/models"
)

type Repository interface {
	// Create records an issued token.
	Create(ctx context.Context, token *models.SessionToken) error

	// Find returns the record for id, or common.ErrorNotFound.
	Find(ctx context.Context, id string) (*models.SessionToken, error)

	// Delete removes a record. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}

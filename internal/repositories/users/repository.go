// Package users declares the repository contract for user accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/minichat/internal/models"
)

type Repository interface {
	// CreateIfAbsent inserts user unless the username is taken. It reports
	// whether a row was inserted and fills in ID and CreatedAt when it was.
	CreateIfAbsent(ctx context.Context, user *models.User) (bool, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	CountByRole(ctx context.Context, role models.Role) (int64, error)
}

package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/minichat/internal/dbx"
	"github.com/dmitrijs2005/minichat/internal/repositories/conversations"
	"github.com/dmitrijs2005/minichat/internal/repositories/messages"
	"github.com/dmitrijs2005/minichat/internal/repositories/sessiontokens"
	"github.com/dmitrijs2005/minichat/internal/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Conversations(db dbx.DBTX) conversations.Repository
	Messages(db dbx.DBTX) messages.Repository
	SessionTokens(db dbx.DBTX) sessiontokens.Repository
}

// Package repomanager opens the Postgres database, applies the embedded
// goose migrations and vends repositories bound to a DB handle or a
// transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/emes-auth/internal/dbx"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/refreshtokens"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}

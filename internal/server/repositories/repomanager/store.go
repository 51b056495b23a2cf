package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/emes-auth/internal/dbx"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/accounts"
)

// Store gives services an account repository plus a way to run several
// writes as one unit.
type Store interface {
	Accounts() accounts.Repository
	WithTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error
}

// PostgresStore runs units of work in a database transaction.
type PostgresStore struct {
	db *sql.DB
	m  RepositoryManager
}

func NewPostgresStore(db *sql.DB, m RepositoryManager) *PostgresStore {
	return &PostgresStore{db: db, m: m}
}

func (s *PostgresStore) Accounts() accounts.Repository {
	return s.m.Accounts(s.db)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, s.m.Accounts(tx))
	})
}

// MemoryStore wraps an in-memory repository. Its units of work are not
// atomic; a failing step leaves earlier writes in place.
type MemoryStore struct {
	repo *accounts.MemoryRepository
}

func NewMemoryStore(repo *accounts.MemoryRepository) *MemoryStore {
	return &MemoryStore{repo: repo}
}

func (s *MemoryStore) Accounts() accounts.Repository {
	return s.repo
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error {
	return fn(ctx, s.repo)
}

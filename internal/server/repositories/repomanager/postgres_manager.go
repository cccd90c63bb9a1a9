package repomanager

import (
	"context"
	"database/sql"

	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/migrations"
	"github.com/cherishly/cherishly/internal/server/repositories/allowance"
	"github.com/cherishly/cherishly/internal/server/repositories/candidates"
	"github.com/cherishly/cherishly/internal/server/repositories/conflicts"
	"github.com/cherishly/cherishly/internal/server/repositories/connections"
	"github.com/cherishly/cherishly/internal/server/repositories/links"
	"github.com/cherishly/cherishly/internal/server/repositories/mergelogs"
	"github.com/cherishly/cherishly/internal/server/repositories/moments"
	"github.com/cherishly/cherishly/internal/server/repositories/outbox"
	"github.com/cherishly/cherishly/internal/server/repositories/people"
	"github.com/cherishly/cherishly/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) People(db dbx.DBTX) people.Repository {
	return people.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Moments(db dbx.DBTX) moments.Repository {
	return moments.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Allowance(db dbx.DBTX) allowance.Repository {
	return allowance.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Connections(db dbx.DBTX) connections.Repository {
	return connections.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Links(db dbx.DBTX) links.Repository {
	return links.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Candidates(db dbx.DBTX) candidates.Repository {
	return candidates.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Outbox(db dbx.DBTX) outbox.Repository {
	return outbox.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Conflicts(db dbx.DBTX) conflicts.Repository {
	return conflicts.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) MergeLogs(db dbx.DBTX) mergelogs.Repository {
	return mergelogs.NewPostgresRepository(db)
}

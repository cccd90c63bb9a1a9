// Package repomanager hands out per-entity repositories bound to either the
// shared *sql.DB or an in-flight transaction, and runs schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/cherishly/cherishly/internal/dbx"
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
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	People(db dbx.DBTX) people.Repository
	Moments(db dbx.DBTX) moments.Repository
	Allowance(db dbx.DBTX) allowance.Repository
	Connections(db dbx.DBTX) connections.Repository
	Links(db dbx.DBTX) links.Repository
	Candidates(db dbx.DBTX) candidates.Repository
	Outbox(db dbx.DBTX) outbox.Repository
	Conflicts(db dbx.DBTX) conflicts.Repository
	MergeLogs(db dbx.DBTX) mergelogs.Repository
}

// Package links persists confirmed mappings between local people and remote
// person uids.
package links

import (
	"context"

	"github.com/cherishly/cherishly/internal/server/models"
)

type Repository interface {
	// Upsert writes a link keyed on (connection, remote_person_uid, user).
	Upsert(ctx context.Context, link *models.SyncPersonLink) (*models.SyncPersonLink, error)
	GetByRemoteUID(ctx context.Context, connectionID, remoteUID string) (*models.SyncPersonLink, error)
	// ListByConnection returns every link of a connection (any status).
	ListByConnection(ctx context.Context, connectionID string) ([]*models.SyncPersonLink, error)
	// ListByPerson returns links pointing at a local person.
	ListByPerson(ctx context.Context, userID, personID string) ([]*models.SyncPersonLink, error)
	// HasEnabledLinks reports whether any enabled linked row exists for the
	// connection; pulls are no-ops without one.
	HasEnabledLinks(ctx context.Context, connectionID string) (bool, error)
	// SetLocalPerson repoints a link row at another local person.
	SetLocalPerson(ctx context.Context, linkID, personID string) error
	Delete(ctx context.Context, linkID string) error
	// Restore updates an existing link row in place by id, or re-inserts it
	// with the original id if it no longer exists. Used by merge-undo.
	Restore(ctx context.Context, link *models.SyncPersonLink) error
}

// Package conflicts persists detected sync ambiguities awaiting explicit
// resolution.
package conflicts

import (
	"context"

	"github.com/cherishly/cherishly/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.SyncConflict) (*models.SyncConflict, error)
	ListOpen(ctx context.Context, connectionID string) ([]*models.SyncConflict, error)
	// ResolveForRemoteUID closes every open conflict referencing the remote
	// entity, recording how it was settled.
	ResolveForRemoteUID(ctx context.Context, connectionID, remoteUID, resolution string) error
}

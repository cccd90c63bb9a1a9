// Package connections persists sync trust relationships with remote peers.
package connections

import (
	"context"

	"github.com/cherishly/cherishly/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, conn *models.SyncConnection) (*models.SyncConnection, error)
	GetByID(ctx context.Context, userID, id string) (*models.SyncConnection, error)
	// GetActiveByUser returns the user's single active connection.
	GetActiveByUser(ctx context.Context, userID string) (*models.SyncConnection, error)
	// ListActive returns every active connection on this instance, across
	// users. Peer endpoints verify HMAC signatures against each of these.
	ListActive(ctx context.Context) ([]*models.SyncConnection, error)
	// Revoke marks the connection revoked. Idempotent.
	Revoke(ctx context.Context, id string) error
}

// Package candidates persists scored match proposals between local people
// and remote person uids.
package candidates

import (
	"context"

	"github.com/cherishly/cherishly/internal/server/models"
)

type Repository interface {
	// Upsert writes a candidate keyed on (connection, remote_person_uid).
	Upsert(ctx context.Context, c *models.SyncPersonCandidate) (*models.SyncPersonCandidate, error)
	ListPending(ctx context.Context, connectionID string) ([]*models.SyncPersonCandidate, error)
	// SetStatus marks the candidate for a remote uid accepted or rejected.
	SetStatus(ctx context.Context, connectionID, remoteUID, status string) error
}

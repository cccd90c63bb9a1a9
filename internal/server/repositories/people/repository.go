// Package people persists tracked individuals and the dependent records that
// must follow them through a merge.
package people

import (
	"context"

	"github.com/cherishly/cherishly/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, person *models.Person) (*models.Person, error)
	GetByID(ctx context.Context, userID, id string) (*models.Person, error)
	GetByUID(ctx context.Context, userID, personUID string) (*models.Person, error)
	// ListActive returns the user's non-archived, non-tombstoned people.
	ListActive(ctx context.Context, userID string) ([]*models.Person, error)
	Update(ctx context.Context, person *models.Person) error
	Archive(ctx context.Context, userID, id string) error
	// UpsertByUID creates or overwrites a person addressed by its
	// cross-instance uid; used when accepting sync events.
	UpsertByUID(ctx context.Context, person *models.Person) (*models.Person, error)
	// Tombstone archives the person and points it at the survivor.
	Tombstone(ctx context.Context, userID, id, mergedIntoID string) error
	// Revive clears the tombstone set by a merge.
	Revive(ctx context.Context, userID, id string) error
	// RepointDependents moves person_notes and person_connections rows
	// (both directions) from one person to another.
	RepointDependents(ctx context.Context, userID, fromID, toID string) error
}

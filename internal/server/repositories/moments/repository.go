// Package moments persists dated records and their partner associations.
package moments

import (
	"context"

	"github.com/cherishly/cherishly/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, moment *models.Moment) (*models.Moment, error)
	GetByID(ctx context.Context, userID, id string) (*models.Moment, error)
	Update(ctx context.Context, moment *models.Moment) error
	SoftDelete(ctx context.Context, userID, id string) error
	// ListByPartner returns non-deleted moments whose partner_ids include
	// personID.
	ListByPartner(ctx context.Context, userID, personID string) ([]*models.Moment, error)
	// SetPartnerIDs overwrites a moment's partner_ids array verbatim.
	SetPartnerIDs(ctx context.Context, userID, id string, partnerIDs []string) error
	// UpsertByUID creates or overwrites a moment addressed by its
	// cross-instance uid; used when accepting sync events.
	UpsertByUID(ctx context.Context, moment *models.Moment) (*models.Moment, error)
}

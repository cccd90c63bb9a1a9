// Package outbox persists the append-only replication queue and the pull
// cursors that consume it.
package outbox

import (
	"context"

	"github.com/cherishly/cherishly/internal/server/models"
)

type Repository interface {
	// Append inserts one entry; entries are never mutated afterwards.
	Append(ctx context.Context, entry *models.OutboxEntry) (*models.OutboxEntry, error)
	// ListAfter returns up to limit entries with id > sinceID, ascending.
	ListAfter(ctx context.Context, connectionID string, sinceID int64, limit int) ([]*models.OutboxEntry, error)
	// Exists reports whether an entry for (entity_type, entity_uid) is
	// already queued on the connection; backfill uses this to stay
	// idempotent across re-runs.
	Exists(ctx context.Context, connectionID, entityType, entityUID string) (bool, error)
	// LastID returns the highest outbox id for the connection (0 if empty).
	LastID(ctx context.Context, connectionID string) (int64, error)

	GetCursor(ctx context.Context, userID, connectionID string) (*models.SyncCursor, error)
	// AdvanceCursor moves the high-water mark forward; it never regresses.
	AdvanceCursor(ctx context.Context, userID, connectionID string, lastPulledID int64) error
}

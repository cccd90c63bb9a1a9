// Package mergelogs persists undo records for person merges.
package mergelogs

import (
	"context"

	"github.com/cherishly/cherishly/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, log *models.MergeLog) (*models.MergeLog, error)
	Get(ctx context.Context, userID, id string) (*models.MergeLog, error)
	// MarkUndone stamps undone_at on an unresolved log; if the log was
	// already undone it reports ErrorNotFound (undo is single-use).
	MarkUndone(ctx context.Context, userID, id string) error
}

// Package allowance persists billing-cycle token budgets and the append-only
// usage-event log.
package allowance

import (
	"context"
	"time"

	"github.com/cherishly/cherishly/internal/server/models"
)

type Repository interface {
	// GetPeriodCovering returns the period containing at, if any.
	GetPeriodCovering(ctx context.Context, userID string, at time.Time) (*models.AllowancePeriod, error)
	// GetLatestPeriod returns the most recent period regardless of bounds.
	GetLatestPeriod(ctx context.Context, userID string) (*models.AllowancePeriod, error)
	// InsertPeriod creates a period; a concurrent insert for the same
	// (user, period_start) loses silently and inserted is false.
	InsertPeriod(ctx context.Context, period *models.AllowancePeriod) (inserted bool, err error)
	// IncrementUsage adds tokens to tokens_used on the given period.
	IncrementUsage(ctx context.Context, periodID string, tokens int64) error
	// Override overwrites both counters on the given period (admin only).
	Override(ctx context.Context, periodID string, granted, used int64) error
	// InsertUsageEvent appends a usage event; a duplicate idempotency key
	// is reported via inserted=false, never as an error.
	InsertUsageEvent(ctx context.Context, event *models.UsageEvent) (inserted bool, err error)
	ListUsageEvents(ctx context.Context, userID string, limit int) ([]*models.UsageEvent, error)
}

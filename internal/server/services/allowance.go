// Package services contains the server-side business logic for the allowance
// engine, AI suggestions, and the sync engine.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/config"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/cherishly/cherishly/internal/server/repositories/repomanager"
)

// lowBalanceFraction is the remaining-credit share below which the gate sets
// the low-balance warning flag. Showing it at most once per client session is
// the client's job.
const lowBalanceFraction = 0.15

// CreditCheck is the allowance gate's verdict for one user.
type CreditCheck struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	RemainingTokens  int64  `json:"remaining_tokens"`
	RemainingCredits int64  `json:"remaining_credits"`
	WarnLowBalance   bool   `json:"warn_low_balance"`
}

// AllowanceService tracks per-period token budgets and the usage-event log.
type AllowanceService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	tokensPerCredit int64
	planBaseCredits int64
	now             func() time.Time
}

func NewAllowanceService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AllowanceService {
	return &AllowanceService{
		db:              db,
		repomanager:     m,
		tokensPerCredit: cfg.TokensPerCredit,
		planBaseCredits: cfg.PlanBaseCredits,
		now:             time.Now,
	}
}

// periodBounds returns the UTC calendar-month window containing t.
func periodBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// EnsurePeriod idempotently guarantees a period row covering now. When the
// prior period has ended, unused tokens roll over into the new period, capped
// at the plan's base allotment. A concurrent caller may win the insert; both
// end up reading the same row.
func (s *AllowanceService) EnsurePeriod(ctx context.Context, userID string) (*models.AllowancePeriod, error) {
	repo := s.repomanager.Allowance(s.db)
	now := s.now()

	period, err := repo.GetPeriodCovering(ctx, userID, now)
	if err == nil {
		return period, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	baseTokens := int64(0)
	source := models.PeriodSourceFree
	if user.Plan == models.PlanPremium {
		baseTokens = s.planBaseCredits * s.tokensPerCredit
		source = models.PeriodSourcePremium
	}

	var rollover int64
	latest, err := repo.GetLatestPeriod(ctx, userID)
	switch {
	case err == nil:
		if !latest.PeriodEnd.After(now) {
			rollover = latest.RemainingTokens()
			if rollover < 0 {
				rollover = 0
			}
			if rollover > baseTokens {
				rollover = baseTokens
			}
		}
	case errors.Is(err, common.ErrorNotFound):
		// first period ever
	default:
		return nil, err
	}

	start, end := periodBounds(now)
	period = &models.AllowancePeriod{
		UserID:         userID,
		TokensGranted:  baseTokens + rollover,
		TokensUsed:     0,
		PeriodStart:    start,
		PeriodEnd:      end,
		Source:         source,
		RolloverTokens: rollover,
		BaseTokens:     baseTokens,
	}

	inserted, err := repo.InsertPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Concurrent EnsurePeriod won the unique (user_id, period_start)
		// race; its row is the period.
		return repo.GetPeriodCovering(ctx, userID, now)
	}
	return period, nil
}

// CheckCredits is the authoritative server-side gate consulted before every
// AI call. The client-side gate is UX only.
func (s *AllowanceService) CheckCredits(ctx context.Context, userID string) (*CreditCheck, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Plan != models.PlanPremium {
		return &CreditCheck{Allowed: false, Reason: "plan does not include AI features"}, nil
	}

	period, err := s.EnsurePeriod(ctx, userID)
	if err != nil {
		return nil, err
	}

	remainingTokens := period.RemainingTokens()
	remainingCredits := period.RemainingCredits(s.tokensPerCredit)

	check := &CreditCheck{
		RemainingTokens:  remainingTokens,
		RemainingCredits: remainingCredits,
	}
	if remainingCredits <= 0 {
		check.Reason = "insufficient credits"
		return check, nil
	}

	check.Allowed = true
	totalCredits := (period.BaseTokens + period.RolloverTokens) / s.tokensPerCredit
	if totalCredits > 0 && float64(remainingCredits) < lowBalanceFraction*float64(totalCredits) {
		check.WarnLowBalance = true
	}
	return check, nil
}

// RecordUsage increments tokens_used on the active period and appends a
// usage event. A retried call with the same idempotency key is a no-op: the
// event insert loses on the unique constraint and the increment is skipped.
func (s *AllowanceService) RecordUsage(ctx context.Context, userID, idempotencyKey string, promptTokens, completionTokens int64, feature string, metadata json.RawMessage) error {
	if idempotencyKey == "" {
		return fmt.Errorf("%w: missing idempotency key", common.ErrorValidation)
	}

	period, err := s.EnsurePeriod(ctx, userID)
	if err != nil {
		return err
	}

	total := promptTokens + completionTokens
	credits := (total + s.tokensPerCredit - 1) / s.tokensPerCredit

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Allowance(tx)

		inserted, err := repo.InsertUsageEvent(ctx, &models.UsageEvent{
			UserID:           userID,
			IdempotencyKey:   idempotencyKey,
			Feature:          feature,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      total,
			CreditsCharged:   credits,
			Metadata:         metadata,
		})
		if err != nil {
			return err
		}
		if !inserted {
			// Duplicate idempotency key: already charged, silently succeed.
			return nil
		}

		return repo.IncrementUsage(ctx, period.ID, total)
	})
}

// SetAllowance is the admin escape hatch: it overwrites both counters on the
// current period and logs a zero-token adjustment event with before/after
// values. No bounds are enforced; a negative remainder must render, not crash.
func (s *AllowanceService) SetAllowance(ctx context.Context, userID string, tokensGranted, tokensUsed int64) error {
	period, err := s.EnsurePeriod(ctx, userID)
	if err != nil {
		return err
	}

	metadata, err := json.Marshal(map[string]int64{
		"granted_before": period.TokensGranted,
		"used_before":    period.TokensUsed,
		"granted_after":  tokensGranted,
		"used_after":     tokensUsed,
	})
	if err != nil {
		return err
	}

	key, err := common.MakeRandHexString(16)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Allowance(tx)

		if err := repo.Override(ctx, period.ID, tokensGranted, tokensUsed); err != nil {
			return err
		}

		_, err := repo.InsertUsageEvent(ctx, &models.UsageEvent{
			UserID:         userID,
			IdempotencyKey: "admin-" + key,
			Feature:        models.FeatureAdminAdjustment,
			Metadata:       metadata,
		})
		return err
	})
}

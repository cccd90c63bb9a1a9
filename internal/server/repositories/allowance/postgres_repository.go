package allowance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
)

const periodColumns = `id, user_id, tokens_granted, tokens_used, period_start, period_end, source, rollover_tokens, base_tokens, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanPeriod(row interface{ Scan(...any) error }) (*models.AllowancePeriod, error) {
	p := &models.AllowancePeriod{}
	err := row.Scan(&p.ID, &p.UserID, &p.TokensGranted, &p.TokensUsed, &p.PeriodStart,
		&p.PeriodEnd, &p.Source, &p.RolloverTokens, &p.BaseTokens, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetPeriodCovering(ctx context.Context, userID string, at time.Time) (*models.AllowancePeriod, error) {
	query :=
		`SELECT ` + periodColumns + ` FROM allowance_periods
		 WHERE user_id = $1 AND period_start <= $2 AND period_end > $2
		 ORDER BY period_start DESC
		 LIMIT 1`

	return scanPeriod(r.db.QueryRowContext(ctx, query, userID, at))
}

func (r *PostgresRepository) GetLatestPeriod(ctx context.Context, userID string) (*models.AllowancePeriod, error) {
	query :=
		`SELECT ` + periodColumns + ` FROM allowance_periods
		 WHERE user_id = $1
		 ORDER BY period_start DESC
		 LIMIT 1`

	return scanPeriod(r.db.QueryRowContext(ctx, query, userID))
}

func (r *PostgresRepository) InsertPeriod(ctx context.Context, period *models.AllowancePeriod) (bool, error) {
	query :=
		`INSERT INTO allowance_periods
		   (user_id, tokens_granted, tokens_used, period_start, period_end, source, rollover_tokens, base_tokens)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, period_start) DO NOTHING
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		period.UserID, period.TokensGranted, period.TokensUsed, period.PeriodStart,
		period.PeriodEnd, period.Source, period.RolloverTokens, period.BaseTokens).
		Scan(&period.ID, &period.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race; the winner's row is authoritative.
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) IncrementUsage(ctx context.Context, periodID string, tokens int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE allowance_periods SET tokens_used = tokens_used + $2 WHERE id = $1`,
		periodID, tokens)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Override(ctx context.Context, periodID string, granted, used int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE allowance_periods SET tokens_granted = $2, tokens_used = $3 WHERE id = $1`,
		periodID, granted, used)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) InsertUsageEvent(ctx context.Context, event *models.UsageEvent) (bool, error) {
	query :=
		`INSERT INTO usage_events
		   (user_id, idempotency_key, feature, prompt_tokens, completion_tokens, total_tokens, credits_charged, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, idempotency_key) DO NOTHING
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		event.UserID, event.IdempotencyKey, event.Feature, event.PromptTokens,
		event.CompletionTokens, event.TotalTokens, event.CreditsCharged, event.Metadata).
		Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Same idempotency key already charged; treat as success.
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) ListUsageEvents(ctx context.Context, userID string, limit int) ([]*models.UsageEvent, error) {
	query :=
		`SELECT id, user_id, idempotency_key, feature, prompt_tokens, completion_tokens, total_tokens, credits_charged, metadata, created_at
		 FROM usage_events
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.UsageEvent
	for rows.Next() {
		e := &models.UsageEvent{}
		err := rows.Scan(&e.ID, &e.UserID, &e.IdempotencyKey, &e.Feature, &e.PromptTokens,
			&e.CompletionTokens, &e.TotalTokens, &e.CreditsCharged, &e.Metadata, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

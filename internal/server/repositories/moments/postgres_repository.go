package moments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/lib/pq"
)

const momentColumns = `id, user_id, moment_uid, title, date, description, recurring, partner_ids, deleted_at, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanMoment(row interface{ Scan(...any) error }) (*models.Moment, error) {
	m := &models.Moment{}
	var partnerIDs pq.StringArray
	err := row.Scan(&m.ID, &m.UserID, &m.MomentUID, &m.Title, &m.Date, &m.Description,
		&m.Recurring, &partnerIDs, &m.DeletedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	m.PartnerIDs = []string(partnerIDs)
	return m, nil
}

func (r *PostgresRepository) Create(ctx context.Context, moment *models.Moment) (*models.Moment, error) {
	query :=
		`INSERT INTO moments (user_id, moment_uid, title, date, description, recurring, partner_ids)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING ` + momentColumns

	return scanMoment(r.db.QueryRowContext(ctx, query,
		moment.UserID, moment.MomentUID, moment.Title, moment.Date,
		moment.Description, moment.Recurring, pq.Array(moment.PartnerIDs)))
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Moment, error) {
	query := `SELECT ` + momentColumns + ` FROM moments WHERE user_id = $1 AND id = $2`
	return scanMoment(r.db.QueryRowContext(ctx, query, userID, id))
}

func (r *PostgresRepository) Update(ctx context.Context, moment *models.Moment) error {
	query :=
		`UPDATE moments
		 SET title = $3, date = $4, description = $5, recurring = $6, partner_ids = $7, updated_at = now()
		 WHERE user_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query,
		moment.UserID, moment.ID, moment.Title, moment.Date,
		moment.Description, moment.Recurring, pq.Array(moment.PartnerIDs))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE moments SET deleted_at = now(), updated_at = now()
		 WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL`,
		userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByPartner(ctx context.Context, userID, personID string) ([]*models.Moment, error) {
	query :=
		`SELECT ` + momentColumns + ` FROM moments
		 WHERE user_id = $1 AND deleted_at IS NULL AND partner_ids @> $2
		 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, userID, pq.Array([]string{personID}))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Moment
	for rows.Next() {
		m, err := scanMoment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) SetPartnerIDs(ctx context.Context, userID, id string, partnerIDs []string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE moments SET partner_ids = $3, updated_at = now() WHERE user_id = $1 AND id = $2`,
		userID, id, pq.Array(partnerIDs))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) UpsertByUID(ctx context.Context, moment *models.Moment) (*models.Moment, error) {
	query :=
		`INSERT INTO moments (user_id, moment_uid, title, date, description, recurring, partner_ids, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, moment_uid) DO UPDATE
		 SET title = EXCLUDED.title,
		     date = EXCLUDED.date,
		     description = EXCLUDED.description,
		     recurring = EXCLUDED.recurring,
		     partner_ids = EXCLUDED.partner_ids,
		     deleted_at = EXCLUDED.deleted_at,
		     updated_at = now()
		 RETURNING ` + momentColumns

	return scanMoment(r.db.QueryRowContext(ctx, query,
		moment.UserID, moment.MomentUID, moment.Title, moment.Date, moment.Description,
		moment.Recurring, pq.Array(moment.PartnerIDs), moment.DeletedAt))
}

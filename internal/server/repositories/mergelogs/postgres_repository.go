package mergelogs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, log *models.MergeLog) (*models.MergeLog, error) {
	query :=
		`INSERT INTO merge_logs (user_id, kept_person_id, merged_person_id, snapshot)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		log.UserID, log.KeptPersonID, log.MergedPersonID, log.Snapshot).
		Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return log, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.MergeLog, error) {
	query :=
		`SELECT id, user_id, kept_person_id, merged_person_id, snapshot, undone_at, created_at
		 FROM merge_logs
		 WHERE user_id = $1 AND id = $2`

	l := &models.MergeLog{}
	err := r.db.QueryRowContext(ctx, query, userID, id).Scan(
		&l.ID, &l.UserID, &l.KeptPersonID, &l.MergedPersonID, &l.Snapshot, &l.UndoneAt, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return l, nil
}

func (r *PostgresRepository) MarkUndone(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE merge_logs SET undone_at = now()
		 WHERE user_id = $1 AND id = $2 AND undone_at IS NULL`,
		userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

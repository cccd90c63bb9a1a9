package conflicts

import (
	"context"
	"fmt"

	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
)

const conflictColumns = `id, user_id, connection_id, remote_person_uid, kind, details, resolution, resolved_at, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.SyncConflict) (*models.SyncConflict, error) {
	query :=
		`INSERT INTO sync_conflicts (user_id, connection_id, remote_person_uid, kind, details)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		c.UserID, c.ConnectionID, c.RemotePersonUID, c.Kind, c.Details).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) ListOpen(ctx context.Context, connectionID string) ([]*models.SyncConflict, error) {
	query :=
		`SELECT ` + conflictColumns + ` FROM sync_conflicts
		 WHERE connection_id = $1 AND resolved_at IS NULL
		 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncConflict
	for rows.Next() {
		c := &models.SyncConflict{}
		err := rows.Scan(&c.ID, &c.UserID, &c.ConnectionID, &c.RemotePersonUID,
			&c.Kind, &c.Details, &c.Resolution, &c.ResolvedAt, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) ResolveForRemoteUID(ctx context.Context, connectionID, remoteUID, resolution string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_conflicts SET resolution = $3, resolved_at = now()
		 WHERE connection_id = $1 AND remote_person_uid = $2 AND resolved_at IS NULL`,
		connectionID, remoteUID, resolution)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

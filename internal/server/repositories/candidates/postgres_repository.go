package candidates

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

const candidateColumns = `id, user_id, connection_id, local_person_id, remote_person_uid, remote_name, confidence, reasons, status, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanCandidate(row interface{ Scan(...any) error }) (*models.SyncPersonCandidate, error) {
	c := &models.SyncPersonCandidate{}
	var reasons pq.StringArray
	err := row.Scan(&c.ID, &c.UserID, &c.ConnectionID, &c.LocalPersonID, &c.RemotePersonUID,
		&c.RemoteName, &c.Confidence, &reasons, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	c.Reasons = []string(reasons)
	return c, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, c *models.SyncPersonCandidate) (*models.SyncPersonCandidate, error) {
	query :=
		`INSERT INTO sync_person_candidates
		   (user_id, connection_id, local_person_id, remote_person_uid, remote_name, confidence, reasons, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (connection_id, remote_person_uid) DO UPDATE
		 SET local_person_id = EXCLUDED.local_person_id,
		     remote_name = EXCLUDED.remote_name,
		     confidence = EXCLUDED.confidence,
		     reasons = EXCLUDED.reasons,
		     status = EXCLUDED.status,
		     updated_at = now()
		 RETURNING ` + candidateColumns

	return scanCandidate(r.db.QueryRowContext(ctx, query,
		c.UserID, c.ConnectionID, c.LocalPersonID, c.RemotePersonUID, c.RemoteName,
		c.Confidence, pq.Array(c.Reasons), c.Status))
}

func (r *PostgresRepository) ListPending(ctx context.Context, connectionID string) ([]*models.SyncPersonCandidate, error) {
	query :=
		`SELECT ` + candidateColumns + ` FROM sync_person_candidates
		 WHERE connection_id = $1 AND status = 'pending'
		 ORDER BY confidence DESC, created_at`

	rows, err := r.db.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncPersonCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) SetStatus(ctx context.Context, connectionID, remoteUID, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_person_candidates SET status = $3, updated_at = now()
		 WHERE connection_id = $1 AND remote_person_uid = $2`,
		connectionID, remoteUID, status)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

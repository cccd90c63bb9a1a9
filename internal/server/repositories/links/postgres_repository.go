package links

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
)

const linkColumns = `id, user_id, connection_id, local_person_id, remote_person_uid, link_status, is_enabled, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanLink(row interface{ Scan(...any) error }) (*models.SyncPersonLink, error) {
	l := &models.SyncPersonLink{}
	err := row.Scan(&l.ID, &l.UserID, &l.ConnectionID, &l.LocalPersonID,
		&l.RemotePersonUID, &l.LinkStatus, &l.IsEnabled, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return l, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, link *models.SyncPersonLink) (*models.SyncPersonLink, error) {
	query :=
		`INSERT INTO sync_person_links (user_id, connection_id, local_person_id, remote_person_uid, link_status, is_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (connection_id, remote_person_uid, user_id) DO UPDATE
		 SET local_person_id = EXCLUDED.local_person_id,
		     link_status = EXCLUDED.link_status,
		     is_enabled = EXCLUDED.is_enabled,
		     updated_at = now()
		 RETURNING ` + linkColumns

	return scanLink(r.db.QueryRowContext(ctx, query,
		link.UserID, link.ConnectionID, link.LocalPersonID, link.RemotePersonUID,
		link.LinkStatus, link.IsEnabled))
}

func (r *PostgresRepository) GetByRemoteUID(ctx context.Context, connectionID, remoteUID string) (*models.SyncPersonLink, error) {
	query :=
		`SELECT ` + linkColumns + ` FROM sync_person_links
		 WHERE connection_id = $1 AND remote_person_uid = $2`

	return scanLink(r.db.QueryRowContext(ctx, query, connectionID, remoteUID))
}

func (r *PostgresRepository) ListByConnection(ctx context.Context, connectionID string) ([]*models.SyncPersonLink, error) {
	query := `SELECT ` + linkColumns + ` FROM sync_person_links WHERE connection_id = $1 ORDER BY created_at`
	return r.list(ctx, query, connectionID)
}

func (r *PostgresRepository) ListByPerson(ctx context.Context, userID, personID string) ([]*models.SyncPersonLink, error) {
	query :=
		`SELECT ` + linkColumns + ` FROM sync_person_links
		 WHERE user_id = $1 AND local_person_id = $2 ORDER BY created_at`
	return r.list(ctx, query, userID, personID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.SyncPersonLink, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncPersonLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) HasEnabledLinks(ctx context.Context, connectionID string) (bool, error) {
	query :=
		`SELECT EXISTS (
		   SELECT 1 FROM sync_person_links
		   WHERE connection_id = $1 AND link_status = 'linked' AND is_enabled = TRUE
		 )`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, connectionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) SetLocalPerson(ctx context.Context, linkID, personID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_person_links SET local_person_id = $2, updated_at = now() WHERE id = $1`,
		linkID, personID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, linkID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_person_links WHERE id = $1`, linkID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Restore(ctx context.Context, link *models.SyncPersonLink) error {
	query :=
		`INSERT INTO sync_person_links (id, user_id, connection_id, local_person_id, remote_person_uid, link_status, is_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET local_person_id = EXCLUDED.local_person_id,
		     link_status = EXCLUDED.link_status,
		     is_enabled = EXCLUDED.is_enabled,
		     updated_at = now()`

	_, err := r.db.ExecContext(ctx, query,
		link.ID, link.UserID, link.ConnectionID, link.LocalPersonID,
		link.RemotePersonUID, link.LinkStatus, link.IsEnabled)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

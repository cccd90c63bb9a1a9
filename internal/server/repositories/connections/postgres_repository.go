package connections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
)

const connColumns = `id, user_id, remote_base_url, signing_key_hash, status, created_at, revoked_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanConn(row interface{ Scan(...any) error }) (*models.SyncConnection, error) {
	c := &models.SyncConnection{}
	err := row.Scan(&c.ID, &c.UserID, &c.RemoteBaseURL, &c.SigningKeyHash,
		&c.Status, &c.CreatedAt, &c.RevokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, conn *models.SyncConnection) (*models.SyncConnection, error) {
	query :=
		`INSERT INTO sync_connections (user_id, remote_base_url, signing_key_hash, status)
		 VALUES ($1, $2, $3, 'active')
		 RETURNING ` + connColumns

	c, err := scanConn(r.db.QueryRowContext(ctx, query,
		conn.UserID, conn.RemoteBaseURL, conn.SigningKeyHash))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorDuplicate
		}
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.SyncConnection, error) {
	query := `SELECT ` + connColumns + ` FROM sync_connections WHERE user_id = $1 AND id = $2`
	return scanConn(r.db.QueryRowContext(ctx, query, userID, id))
}

func (r *PostgresRepository) GetActiveByUser(ctx context.Context, userID string) (*models.SyncConnection, error) {
	query :=
		`SELECT ` + connColumns + ` FROM sync_connections
		 WHERE user_id = $1 AND status = 'active'`

	return scanConn(r.db.QueryRowContext(ctx, query, userID))
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]*models.SyncConnection, error) {
	query := `SELECT ` + connColumns + ` FROM sync_connections WHERE status = 'active' ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncConnection
	for rows.Next() {
		c, err := scanConn(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_connections SET status = 'revoked', revoked_at = now()
		 WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	// Already-revoked rows match zero rows; revocation is idempotent.
	return nil
}

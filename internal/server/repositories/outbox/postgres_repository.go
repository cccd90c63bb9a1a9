package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, entry *models.OutboxEntry) (*models.OutboxEntry, error) {
	query :=
		`INSERT INTO sync_outbox (user_id, connection_id, entity_type, entity_uid, operation, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		entry.UserID, entry.ConnectionID, entry.EntityType, entry.EntityUID,
		entry.Operation, entry.Payload).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

func (r *PostgresRepository) ListAfter(ctx context.Context, connectionID string, sinceID int64, limit int) ([]*models.OutboxEntry, error) {
	query :=
		`SELECT id, user_id, connection_id, entity_type, entity_uid, operation, payload, created_at
		 FROM sync_outbox
		 WHERE connection_id = $1 AND id > $2
		 ORDER BY id ASC
		 LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, connectionID, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.OutboxEntry
	for rows.Next() {
		e := &models.OutboxEntry{}
		err := rows.Scan(&e.ID, &e.UserID, &e.ConnectionID, &e.EntityType, &e.EntityUID,
			&e.Operation, &e.Payload, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) Exists(ctx context.Context, connectionID, entityType, entityUID string) (bool, error) {
	query :=
		`SELECT EXISTS (
		   SELECT 1 FROM sync_outbox
		   WHERE connection_id = $1 AND entity_type = $2 AND entity_uid = $3
		 )`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, connectionID, entityType, entityUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) LastID(ctx context.Context, connectionID string) (int64, error) {
	var id sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(id) FROM sync_outbox WHERE connection_id = $1`, connectionID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id.Int64, nil
}

func (r *PostgresRepository) GetCursor(ctx context.Context, userID, connectionID string) (*models.SyncCursor, error) {
	query :=
		`SELECT user_id, connection_id, last_pulled_outbox_id, updated_at
		 FROM sync_cursors
		 WHERE user_id = $1 AND connection_id = $2`

	c := &models.SyncCursor{}
	err := r.db.QueryRowContext(ctx, query, userID, connectionID).
		Scan(&c.UserID, &c.ConnectionID, &c.LastPulledOutboxID, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Absent cursor means nothing has been pulled yet.
			return &models.SyncCursor{UserID: userID, ConnectionID: connectionID}, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) AdvanceCursor(ctx context.Context, userID, connectionID string, lastPulledID int64) error {
	query :=
		`INSERT INTO sync_cursors (user_id, connection_id, last_pulled_outbox_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, connection_id) DO UPDATE
		 SET last_pulled_outbox_id = GREATEST(sync_cursors.last_pulled_outbox_id, EXCLUDED.last_pulled_outbox_id),
		     updated_at = now()`

	if _, err := r.db.ExecContext(ctx, query, userID, connectionID, lastPulledID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

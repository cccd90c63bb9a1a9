package people

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
)

const personColumns = `id, user_id, person_uid, name, relationship_type, archived, merged_into_person_id, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanPerson(row interface{ Scan(...any) error }) (*models.Person, error) {
	p := &models.Person{}
	err := row.Scan(&p.ID, &p.UserID, &p.PersonUID, &p.Name, &p.RelationshipType,
		&p.Archived, &p.MergedIntoPersonID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, person *models.Person) (*models.Person, error) {
	query :=
		`INSERT INTO people (user_id, person_uid, name, relationship_type)
		 VALUES ($1, $2, $3, $4)
		 RETURNING ` + personColumns

	return scanPerson(r.db.QueryRowContext(ctx, query,
		person.UserID, person.PersonUID, person.Name, person.RelationshipType))
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE user_id = $1 AND id = $2`
	return scanPerson(r.db.QueryRowContext(ctx, query, userID, id))
}

func (r *PostgresRepository) GetByUID(ctx context.Context, userID, personUID string) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE user_id = $1 AND person_uid = $2`
	return scanPerson(r.db.QueryRowContext(ctx, query, userID, personUID))
}

func (r *PostgresRepository) ListActive(ctx context.Context, userID string) ([]*models.Person, error) {
	query :=
		`SELECT ` + personColumns + ` FROM people
		 WHERE user_id = $1 AND archived = FALSE AND merged_into_person_id IS NULL
		 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, person *models.Person) error {
	query :=
		`UPDATE people SET name = $3, relationship_type = $4, archived = $5, updated_at = now()
		 WHERE user_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query,
		person.UserID, person.ID, person.Name, person.RelationshipType, person.Archived)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Archive(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE people SET archived = TRUE, updated_at = now() WHERE user_id = $1 AND id = $2`,
		userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) UpsertByUID(ctx context.Context, person *models.Person) (*models.Person, error) {
	query :=
		`INSERT INTO people (user_id, person_uid, name, relationship_type, archived)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, person_uid) DO UPDATE
		 SET name = EXCLUDED.name,
		     relationship_type = EXCLUDED.relationship_type,
		     archived = EXCLUDED.archived,
		     updated_at = now()
		 RETURNING ` + personColumns

	return scanPerson(r.db.QueryRowContext(ctx, query,
		person.UserID, person.PersonUID, person.Name, person.RelationshipType, person.Archived))
}

func (r *PostgresRepository) Tombstone(ctx context.Context, userID, id, mergedIntoID string) error {
	query :=
		`UPDATE people SET archived = TRUE, merged_into_person_id = $3, updated_at = now()
		 WHERE user_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, id, mergedIntoID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Revive(ctx context.Context, userID, id string) error {
	query :=
		`UPDATE people SET archived = FALSE, merged_into_person_id = NULL, updated_at = now()
		 WHERE user_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) RepointDependents(ctx context.Context, userID, fromID, toID string) error {
	stmts := []string{
		`UPDATE person_notes SET partner_id = $3 WHERE user_id = $1 AND partner_id = $2`,
		`UPDATE person_connections SET partner_id = $3 WHERE user_id = $1 AND partner_id = $2`,
		`UPDATE person_connections SET connected_partner_id = $3 WHERE user_id = $1 AND connected_partner_id = $2`,
	}
	for _, q := range stmts {
		if _, err := r.db.ExecContext(ctx, q, userID, fromID, toID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

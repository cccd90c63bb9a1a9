package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/cherishly/cherishly/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// PeopleService manages the relationship graph. Writes to a person that is
// linked on an active connection also append a snapshot to the outbox, in the
// same transaction, so peers observe every change in order.
type PeopleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewPeopleService(db *sql.DB, m repomanager.RepositoryManager) *PeopleService {
	return &PeopleService{db: db, repomanager: m}
}

// replicationTarget returns the active connection id when the person is
// linked and enabled on it, or "" when no replication is due.
func replicationTarget(ctx context.Context, m repomanager.RepositoryManager, tx dbx.DBTX, userID, personID string) (string, error) {
	conn, err := m.Connections(tx).GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", nil
		}
		return "", err
	}

	personLinks, err := m.Links(tx).ListByPerson(ctx, userID, personID)
	if err != nil {
		return "", err
	}
	for _, l := range personLinks {
		if l.ConnectionID == conn.ID && l.LinkStatus == models.LinkStatusLinked && l.IsEnabled {
			return conn.ID, nil
		}
	}
	return "", nil
}

func appendSnapshot(ctx context.Context, m repomanager.RepositoryManager, tx dbx.DBTX, userID, connectionID, operation string, snap models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = m.Outbox(tx).Append(ctx, &models.OutboxEntry{
		UserID:       userID,
		ConnectionID: connectionID,
		EntityType:   snap.EntityType,
		EntityUID:    snap.EntityUID(),
		Operation:    operation,
		Payload:      payload,
	})
	return err
}

func (s *PeopleService) Create(ctx context.Context, userID, name, relationshipType string) (*models.Person, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrorValidation)
	}
	// A new person has no links yet, so no outbox entry is due.
	return s.repomanager.People(s.db).Create(ctx, &models.Person{
		UserID:           userID,
		PersonUID:        uuid.NewString(),
		Name:             name,
		RelationshipType: relationshipType,
	})
}

func (s *PeopleService) Get(ctx context.Context, userID, id string) (*models.Person, error) {
	return s.repomanager.People(s.db).GetByID(ctx, userID, id)
}

func (s *PeopleService) List(ctx context.Context, userID string) ([]*models.Person, error) {
	return s.repomanager.People(s.db).ListActive(ctx, userID)
}

func (s *PeopleService) Update(ctx context.Context, userID, id, name, relationshipType string) (*models.Person, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrorValidation)
	}

	var person *models.Person
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		person, err = s.repomanager.People(tx).GetByID(ctx, userID, id)
		if err != nil {
			return err
		}
		if person.Tombstoned() {
			return fmt.Errorf("%w: person was merged away", common.ErrorValidation)
		}

		person.Name = name
		person.RelationshipType = relationshipType
		if err := s.repomanager.People(tx).Update(ctx, person); err != nil {
			return err
		}

		connID, err := replicationTarget(ctx, s.repomanager, tx, userID, id)
		if err != nil || connID == "" {
			return err
		}
		return appendSnapshot(ctx, s.repomanager, tx, userID, connID, models.OpUpsert, models.NewPersonSnapshot(person))
	})
	if err != nil {
		return nil, err
	}
	return person, nil
}

// Archive hides the person locally. Peers see the archived flag through the
// snapshot rather than a delete: archival is reversible.
func (s *PeopleService) Archive(ctx context.Context, userID, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		person, err := s.repomanager.People(tx).GetByID(ctx, userID, id)
		if err != nil {
			return err
		}

		if err := s.repomanager.People(tx).Archive(ctx, userID, id); err != nil {
			return err
		}

		connID, err := replicationTarget(ctx, s.repomanager, tx, userID, id)
		if err != nil || connID == "" {
			return err
		}
		person.Archived = true
		return appendSnapshot(ctx, s.repomanager, tx, userID, connID, models.OpUpsert, models.NewPersonSnapshot(person))
	})
}

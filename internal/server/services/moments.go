package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/cherishly/cherishly/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// MomentService manages dated records. A moment replicates to the peer when
// at least one of its partners is linked and enabled on the user's active
// connection; the outbox entry rides the same transaction as the write.
type MomentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewMomentService(db *sql.DB, m repomanager.RepositoryManager) *MomentService {
	return &MomentService{db: db, repomanager: m}
}

// momentReplication resolves whether the moment is due on the wire and, if
// so, the partner uids to embed in the snapshot. Partner uids cover all
// partners, linked or not; the receiving side maps what it can.
func (s *MomentService) momentReplication(ctx context.Context, tx dbx.DBTX, moment *models.Moment) (connID string, partnerUIDs []string, err error) {
	for _, pid := range moment.PartnerIDs {
		person, err := s.repomanager.People(tx).GetByID(ctx, moment.UserID, pid)
		if err != nil {
			return "", nil, err
		}
		partnerUIDs = append(partnerUIDs, person.PersonUID)

		if connID == "" {
			connID, err = replicationTarget(ctx, s.repomanager, tx, moment.UserID, pid)
			if err != nil {
				return "", nil, err
			}
		}
	}
	return connID, partnerUIDs, nil
}

func (s *MomentService) validatePartners(ctx context.Context, tx dbx.DBTX, userID string, partnerIDs []string) error {
	if len(partnerIDs) == 0 {
		return fmt.Errorf("%w: a moment needs at least one partner", common.ErrorValidation)
	}
	for _, pid := range partnerIDs {
		person, err := s.repomanager.People(tx).GetByID(ctx, userID, pid)
		if err != nil {
			return fmt.Errorf("%w: unknown partner %s", common.ErrorValidation, pid)
		}
		if person.Tombstoned() {
			return fmt.Errorf("%w: partner %s was merged away", common.ErrorValidation, pid)
		}
	}
	return nil
}

func (s *MomentService) Create(ctx context.Context, userID, title string, date time.Time, description string, recurring bool, partnerIDs []string) (*models.Moment, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrorValidation)
	}

	var moment *models.Moment
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.validatePartners(ctx, tx, userID, partnerIDs); err != nil {
			return err
		}

		var err error
		moment, err = s.repomanager.Moments(tx).Create(ctx, &models.Moment{
			UserID:      userID,
			MomentUID:   uuid.NewString(),
			Title:       title,
			Date:        date,
			Description: description,
			Recurring:   recurring,
			PartnerIDs:  partnerIDs,
		})
		if err != nil {
			return err
		}

		return s.enqueueIfLinked(ctx, tx, moment, models.OpUpsert)
	})
	if err != nil {
		return nil, err
	}
	return moment, nil
}

func (s *MomentService) enqueueIfLinked(ctx context.Context, tx dbx.DBTX, moment *models.Moment, operation string) error {
	connID, partnerUIDs, err := s.momentReplication(ctx, tx, moment)
	if err != nil || connID == "" {
		return err
	}
	return appendSnapshot(ctx, s.repomanager, tx, moment.UserID, connID, operation, models.NewMomentSnapshot(moment, partnerUIDs))
}

func (s *MomentService) Get(ctx context.Context, userID, id string) (*models.Moment, error) {
	return s.repomanager.Moments(s.db).GetByID(ctx, userID, id)
}

func (s *MomentService) ListByPartner(ctx context.Context, userID, personID string) ([]*models.Moment, error) {
	return s.repomanager.Moments(s.db).ListByPartner(ctx, userID, personID)
}

func (s *MomentService) Update(ctx context.Context, userID, id, title string, date time.Time, description string, recurring bool, partnerIDs []string) (*models.Moment, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrorValidation)
	}

	var moment *models.Moment
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.validatePartners(ctx, tx, userID, partnerIDs); err != nil {
			return err
		}

		var err error
		moment, err = s.repomanager.Moments(tx).GetByID(ctx, userID, id)
		if err != nil {
			return err
		}

		moment.Title = title
		moment.Date = date
		moment.Description = description
		moment.Recurring = recurring
		moment.PartnerIDs = partnerIDs
		if err := s.repomanager.Moments(tx).Update(ctx, moment); err != nil {
			return err
		}

		return s.enqueueIfLinked(ctx, tx, moment, models.OpUpsert)
	})
	if err != nil {
		return nil, err
	}
	return moment, nil
}

// Delete soft-deletes the moment and, when it was replicating, tells the
// peer via a delete-operation snapshot.
func (s *MomentService) Delete(ctx context.Context, userID, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		moment, err := s.repomanager.Moments(tx).GetByID(ctx, userID, id)
		if err != nil {
			return err
		}

		if err := s.repomanager.Moments(tx).SoftDelete(ctx, userID, id); err != nil {
			return err
		}

		now := time.Now().UTC()
		moment.DeletedAt = &now
		return s.enqueueIfLinked(ctx, tx, moment, models.OpDelete)
	})
}

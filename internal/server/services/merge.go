package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/logging"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/cherishly/cherishly/internal/server/repositories/repomanager"
)

// MergeService folds one person into another and can undo exactly one merge
// per log entry. The undo snapshot is written durably BEFORE any destructive
// step, so a crash mid-merge can always be unwound by hand from the log.
type MergeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewMergeService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *MergeService {
	return &MergeService{db: db, repomanager: m, logger: logger}
}

// MergePeople folds dropID into keepID: moments are repointed (deduped),
// sync links reconciled, dependents moved, and the dropped person
// tombstoned. Returns the merge log id usable for undo.
func (s *MergeService) MergePeople(ctx context.Context, userID, keepID, dropID string) (*models.MergeLog, error) {
	if keepID == dropID {
		return nil, fmt.Errorf("%w: cannot merge a person into itself", common.ErrorValidation)
	}

	keep, err := s.repomanager.People(s.db).GetByID(ctx, userID, keepID)
	if err != nil {
		return nil, err
	}
	drop, err := s.repomanager.People(s.db).GetByID(ctx, userID, dropID)
	if err != nil {
		return nil, err
	}
	if keep.Tombstoned() || drop.Tombstoned() {
		return nil, fmt.Errorf("%w: person already merged", common.ErrorValidation)
	}

	snapshot, err := s.buildSnapshot(ctx, userID, drop)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}

	// The log row commits on its own before any mutation below.
	mergeLog, err := s.repomanager.MergeLogs(s.db).Create(ctx, &models.MergeLog{
		UserID:         userID,
		KeptPersonID:   keepID,
		MergedPersonID: dropID,
		Snapshot:       payload,
	})
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.movePartners(ctx, tx, userID, dropID, keepID); err != nil {
			return err
		}
		if err := s.reconcileLinks(ctx, tx, userID, dropID, keepID); err != nil {
			return err
		}
		if err := s.repomanager.People(tx).RepointDependents(ctx, userID, dropID, keepID); err != nil {
			return err
		}
		return s.repomanager.People(tx).Tombstone(ctx, userID, dropID, keepID)
	})
	if err != nil {
		return nil, err
	}
	return mergeLog, nil
}

func (s *MergeService) buildSnapshot(ctx context.Context, userID string, drop *models.Person) (*models.MergeSnapshot, error) {
	snapshot := &models.MergeSnapshot{
		Version: 1,
		Person: models.PersonRecord{
			ID:               drop.ID,
			PersonUID:        drop.PersonUID,
			Name:             drop.Name,
			RelationshipType: drop.RelationshipType,
			Archived:         drop.Archived,
		},
	}

	dropLinks, err := s.repomanager.Links(s.db).ListByPerson(ctx, userID, drop.ID)
	if err != nil {
		return nil, err
	}
	for _, l := range dropLinks {
		snapshot.Links = append(snapshot.Links, models.LinkRecord{
			ID:              l.ID,
			ConnectionID:    l.ConnectionID,
			LocalPersonID:   drop.ID,
			RemotePersonUID: l.RemotePersonUID,
			LinkStatus:      l.LinkStatus,
			IsEnabled:       l.IsEnabled,
		})
	}

	dropMoments, err := s.repomanager.Moments(s.db).ListByPartner(ctx, userID, drop.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range dropMoments {
		snapshot.Moments = append(snapshot.Moments, models.MomentPartnerSet{
			MomentID:   m.ID,
			PartnerIDs: append([]string(nil), m.PartnerIDs...),
		})
	}
	return snapshot, nil
}

// movePartners rewrites every affected moment's partner_ids, replacing dropID
// with keepID and deduplicating when both were partners.
func (s *MergeService) movePartners(ctx context.Context, tx dbx.DBTX, userID, dropID, keepID string) error {
	affected, err := s.repomanager.Moments(tx).ListByPartner(ctx, userID, dropID)
	if err != nil {
		return err
	}
	for _, m := range affected {
		rewritten := make([]string, 0, len(m.PartnerIDs))
		seen := map[string]bool{}
		for _, pid := range m.PartnerIDs {
			if pid == dropID {
				pid = keepID
			}
			if seen[pid] {
				continue
			}
			seen[pid] = true
			rewritten = append(rewritten, pid)
		}
		if err := s.repomanager.Moments(tx).SetPartnerIDs(ctx, userID, m.ID, rewritten); err != nil {
			return err
		}
	}
	return nil
}

// reconcileLinks repoints the dropped person's links at the survivor. When
// the survivor already holds a link for the same remote uid on the same
// connection, the dropped one is deleted instead (the unique key forbids
// both).
func (s *MergeService) reconcileLinks(ctx context.Context, tx dbx.DBTX, userID, dropID, keepID string) error {
	dropLinks, err := s.repomanager.Links(tx).ListByPerson(ctx, userID, dropID)
	if err != nil {
		return err
	}
	keepLinks, err := s.repomanager.Links(tx).ListByPerson(ctx, userID, keepID)
	if err != nil {
		return err
	}

	held := map[string]bool{}
	for _, l := range keepLinks {
		held[l.ConnectionID+"/"+l.RemotePersonUID] = true
	}

	for _, l := range dropLinks {
		if held[l.ConnectionID+"/"+l.RemotePersonUID] {
			if err := s.repomanager.Links(tx).Delete(ctx, l.ID); err != nil {
				return err
			}
			continue
		}
		if err := s.repomanager.Links(tx).SetLocalPerson(ctx, l.ID, keepID); err != nil {
			return err
		}
	}
	return nil
}

// UndoMerge restores the pre-merge state from the log snapshot. Each log is
// single-use: the undone_at stamp is claimed first, and a second attempt
// reads as NotFound.
func (s *MergeService) UndoMerge(ctx context.Context, userID, logID string) error {
	mergeLog, err := s.repomanager.MergeLogs(s.db).Get(ctx, userID, logID)
	if err != nil {
		return err
	}

	snapshot, err := models.DecodeMergeSnapshot(mergeLog.Snapshot)
	if err != nil {
		return fmt.Errorf("corrupt merge snapshot %s: %w", logID, err)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Claiming the stamp inside the tx makes concurrent undos race on
		// the row update; the loser gets NotFound.
		if err := s.repomanager.MergeLogs(tx).MarkUndone(ctx, userID, logID); err != nil {
			return err
		}

		if err := s.repomanager.People(tx).Revive(ctx, userID, snapshot.Person.ID); err != nil {
			return err
		}

		for _, m := range snapshot.Moments {
			if err := s.repomanager.Moments(tx).SetPartnerIDs(ctx, userID, m.MomentID, m.PartnerIDs); err != nil {
				return err
			}
		}

		for _, l := range snapshot.Links {
			// Restore must not trip the (connection, remote uid, user)
			// unique key: when another row already holds it, skip.
			existing, err := s.repomanager.Links(tx).GetByRemoteUID(ctx, l.ConnectionID, l.RemotePersonUID)
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			if existing != nil && existing.ID != l.ID {
				continue
			}
			localID := l.LocalPersonID
			if err := s.repomanager.Links(tx).Restore(ctx, &models.SyncPersonLink{
				ID:              l.ID,
				UserID:          userID,
				ConnectionID:    l.ConnectionID,
				LocalPersonID:   &localID,
				RemotePersonUID: l.RemotePersonUID,
				LinkStatus:      l.LinkStatus,
				IsEnabled:       l.IsEnabled,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

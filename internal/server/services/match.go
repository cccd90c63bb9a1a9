package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/logging"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/cherishly/cherishly/internal/server/repositories/repomanager"
	"github.com/cherishly/cherishly/internal/server/syncwire"
)

// Mapping actions.
const (
	ActionLink         = "link"
	ActionCreateLocal  = "create_local"
	ActionCreateRemote = "create_remote"
	ActionExclude      = "exclude"
)

// MappingAction is one user decision about one remote person.
type MappingAction struct {
	Action            string `json:"action"`
	RemotePersonUID   string `json:"remote_person_uid,omitempty"`
	LocalPersonID     string `json:"local_person_id,omitempty"`
	Name              string `json:"name,omitempty"`
	RelationshipLabel string `json:"relationship_label,omitempty"`
}

// MappingResult reports one action's outcome. Actions are independent: a
// failed one never rolls back its neighbours.
type MappingResult struct {
	Action          string `json:"action"`
	RemotePersonUID string `json:"remote_person_uid,omitempty"`
	LocalPersonID   string `json:"local_person_id,omitempty"`
	OK              bool   `json:"ok"`
	Error           string `json:"error,omitempty"`
}

// MappingSummary aggregates a batch.
type MappingSummary struct {
	Applied int             `json:"applied"`
	Failed  int             `json:"failed"`
	Results []MappingResult `json:"results"`
}

// MatchService proposes person matches across a connection and applies the
// user's decisions. It never links anything on its own: the scorer writes
// candidates, and only ApplyMapping creates links.
type MatchService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	peer        peerCaller
	logger      logging.Logger
}

func NewMatchService(db *sql.DB, m repomanager.RepositoryManager, peer peerCaller, logger logging.Logger) *MatchService {
	return &MatchService{db: db, repomanager: m, peer: peer, logger: logger}
}

// matchScore is the deterministic scorer. Given the same inputs it always
// returns the same local person and confidence; among equally good local
// people the first encountered wins.
func matchScore(remote syncwire.RemotePerson, locals []*models.Person) (personID string, confidence float64, reasons []string) {
	fold := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	firstToken := func(s string) string {
		fields := strings.Fields(fold(s))
		if len(fields) == 0 {
			return ""
		}
		return fields[0]
	}

	remoteName := fold(remote.Name)
	remoteFirst := firstToken(remote.Name)

	best := 0.0
	var bestID string
	var bestReasons []string

	for _, p := range locals {
		var score float64
		var why string

		switch {
		case p.PersonUID == remote.PersonUID:
			score, why = 0.99, "identical uid"
		case fold(p.Name) == remoteName && remoteName != "":
			score, why = 0.95, "exact name"
		case len(remoteFirst) >= 2 && firstToken(p.Name) == remoteFirst:
			score, why = 0.70, "first name"
		case remoteName != "" && fold(p.Name) != "" &&
			(strings.Contains(fold(p.Name), remoteName) || strings.Contains(remoteName, fold(p.Name))):
			score, why = 0.50, "name substring"
		}

		if score > best {
			best = score
			bestID = p.ID
			bestReasons = []string{why}
		}
	}
	return bestID, best, bestReasons
}

// SuggestMatches fetches the peer's people and writes one pending candidate
// per unmapped remote uid. Already linked or excluded uids are skipped, so an
// exclusion is never re-suggested.
func (s *MatchService) SuggestMatches(ctx context.Context, userID string) ([]*models.SyncPersonCandidate, error) {
	conn, err := s.repomanager.Connections(s.db).GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNoActiveConnection
		}
		return nil, err
	}

	remotePeople, err := s.peer.ListPeople(ctx, conn)
	if err != nil {
		return nil, err
	}

	locals, err := s.repomanager.People(s.db).ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	mapped := map[string]bool{}
	connLinks, err := s.repomanager.Links(s.db).ListByConnection(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	for _, l := range connLinks {
		if l.LinkStatus == models.LinkStatusLinked || l.LinkStatus == models.LinkStatusExcluded {
			mapped[l.RemotePersonUID] = true
		}
	}

	out := make([]*models.SyncPersonCandidate, 0, len(remotePeople))
	for _, remote := range remotePeople {
		if mapped[remote.PersonUID] {
			continue
		}

		localID, confidence, reasons := matchScore(remote, locals)
		candidate := &models.SyncPersonCandidate{
			UserID:          userID,
			ConnectionID:    conn.ID,
			RemotePersonUID: remote.PersonUID,
			RemoteName:      remote.Name,
			Confidence:      confidence,
			Reasons:         reasons,
			Status:          models.CandidatePending,
		}
		if localID != "" {
			candidate.LocalPersonID = &localID
		}

		candidate, err = s.repomanager.Candidates(s.db).Upsert(ctx, candidate)
		if err != nil {
			return nil, err
		}
		out = append(out, candidate)
	}
	return out, nil
}

func (s *MatchService) ListCandidates(ctx context.Context, userID string) ([]*models.SyncPersonCandidate, error) {
	conn, err := s.repomanager.Connections(s.db).GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNoActiveConnection
		}
		return nil, err
	}
	return s.repomanager.Candidates(s.db).ListPending(ctx, conn.ID)
}

// ApplyMapping applies each decision in its own transaction. The summary
// reports per-action outcomes; a batch with failures still returns normally.
func (s *MatchService) ApplyMapping(ctx context.Context, userID string, actions []MappingAction) (*MappingSummary, error) {
	conn, err := s.repomanager.Connections(s.db).GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNoActiveConnection
		}
		return nil, err
	}

	summary := &MappingSummary{Results: make([]MappingResult, 0, len(actions))}
	for _, action := range actions {
		result := MappingResult{
			Action:          action.Action,
			RemotePersonUID: action.RemotePersonUID,
			LocalPersonID:   action.LocalPersonID,
		}

		localID, err := s.applyAction(ctx, conn, action)
		if err != nil {
			result.Error = err.Error()
			summary.Failed++
		} else {
			result.OK = true
			result.LocalPersonID = localID
			summary.Applied++
		}
		summary.Results = append(summary.Results, result)
	}
	return summary, nil
}

func (s *MatchService) applyAction(ctx context.Context, conn *models.SyncConnection, action MappingAction) (localID string, err error) {
	var push *syncwire.PushEvent
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		switch action.Action {
		case ActionLink:
			localID = action.LocalPersonID
			return s.linkPerson(ctx, tx, conn, action.RemotePersonUID, localID)

		case ActionCreateLocal:
			if action.Name == "" {
				return fmt.Errorf("%w: create_local needs a name", common.ErrorValidation)
			}
			person, err := s.repomanager.People(tx).Create(ctx, &models.Person{
				UserID:           conn.UserID,
				PersonUID:        action.RemotePersonUID,
				Name:             action.Name,
				RelationshipType: action.RelationshipLabel,
			})
			if err != nil {
				return err
			}
			localID = person.ID
			return s.linkPerson(ctx, tx, conn, action.RemotePersonUID, person.ID)

		case ActionCreateRemote:
			person, err := s.repomanager.People(tx).GetByID(ctx, conn.UserID, action.LocalPersonID)
			if err != nil {
				return err
			}
			localID = person.ID
			// The shared uid is ours; the peer creates its copy from the
			// snapshot, delivered eagerly below and again on its next pull.
			if err := s.linkPerson(ctx, tx, conn, person.PersonUID, person.ID); err != nil {
				return err
			}
			snap := models.NewPersonSnapshot(person)
			if err := appendSnapshot(ctx, s.repomanager, tx, conn.UserID, conn.ID, models.OpUpsert, snap); err != nil {
				return err
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			push = &syncwire.PushEvent{
				EntityType: snap.EntityType,
				EntityUID:  snap.EntityUID(),
				Operation:  models.OpUpsert,
				Payload:    payload,
			}
			return nil

		case ActionExclude:
			_, err := s.repomanager.Links(tx).Upsert(ctx, &models.SyncPersonLink{
				UserID:          conn.UserID,
				ConnectionID:    conn.ID,
				RemotePersonUID: action.RemotePersonUID,
				LinkStatus:      models.LinkStatusExcluded,
				IsEnabled:       false,
			})
			if err != nil {
				return err
			}
			if err := s.repomanager.Candidates(tx).SetStatus(ctx, conn.ID, action.RemotePersonUID, models.CandidateRejected); err != nil {
				return err
			}
			return s.repomanager.Conflicts(tx).ResolveForRemoteUID(ctx, conn.ID, action.RemotePersonUID, "excluded")

		default:
			return fmt.Errorf("%w: unknown action %q", common.ErrorValidation, action.Action)
		}
	})
	if err != nil {
		return localID, err
	}

	// The link and outbox row are already committed; a refused push fails
	// the action explicitly, and the peer's next pull still covers the row.
	if push != nil {
		if err := s.peer.Push(ctx, conn, []syncwire.PushEvent{*push}); err != nil {
			return localID, err
		}
	}
	return localID, nil
}

// linkPerson writes a confirmed enabled link and settles the bookkeeping
// around it (candidate accepted, conflicts resolved).
func (s *MatchService) linkPerson(ctx context.Context, tx dbx.DBTX, conn *models.SyncConnection, remoteUID, personID string) error {
	if remoteUID == "" || personID == "" {
		return fmt.Errorf("%w: remote uid and local person are required", common.ErrorValidation)
	}

	person, err := s.repomanager.People(tx).GetByID(ctx, conn.UserID, personID)
	if err != nil {
		return err
	}
	if person.Tombstoned() {
		return fmt.Errorf("%w: person was merged away", common.ErrorValidation)
	}

	_, err = s.repomanager.Links(tx).Upsert(ctx, &models.SyncPersonLink{
		UserID:          conn.UserID,
		ConnectionID:    conn.ID,
		LocalPersonID:   &person.ID,
		RemotePersonUID: remoteUID,
		LinkStatus:      models.LinkStatusLinked,
		IsEnabled:       true,
	})
	if err != nil {
		return err
	}

	if err := s.repomanager.Candidates(tx).SetStatus(ctx, conn.ID, remoteUID, models.CandidateAccepted); err != nil {
		return err
	}
	return s.repomanager.Conflicts(tx).ResolveForRemoteUID(ctx, conn.ID, remoteUID, "linked")
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/cryptox"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/logging"
	"github.com/cherishly/cherishly/internal/server/config"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/cherishly/cherishly/internal/server/repositories/repomanager"
	"github.com/cherishly/cherishly/internal/server/syncwire"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// backfillConcurrency bounds the per-link fan-out during Backfill.
const backfillConcurrency = 4

// peerCaller is the outbound side of the sync protocol (peerclient.Client in
// production).
type peerCaller interface {
	Pull(ctx context.Context, conn *models.SyncConnection, sinceOutboxID int64, limit int) (*syncwire.PullResponse, error)
	Push(ctx context.Context, conn *models.SyncConnection, events []syncwire.PushEvent) error
	Revoke(ctx context.Context, conn *models.SyncConnection, revokedBy string) error
	ListPeople(ctx context.Context, conn *models.SyncConnection) ([]syncwire.RemotePerson, error)
}

// RevokeResult reports a revocation. The local transition always happens;
// notifying the peer is best effort.
type RevokeResult struct {
	LocalRevoked   bool `json:"local_revoked"`
	RemoteNotified bool `json:"remote_notified"`
}

// SyncService implements the peer-to-peer replication engine: connection
// lifecycle, the outbox consumer (pull), the receiving side of the peer API,
// and backfill.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	peer        peerCaller
	pullLimit   int
	logger      logging.Logger
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, peer peerCaller, cfg *config.Config, logger logging.Logger) *SyncService {
	return &SyncService{
		db:          db,
		repomanager: m,
		peer:        peer,
		pullLimit:   cfg.SyncPullLimit,
		logger:      logger,
	}
}

// Connect establishes trust with a remote instance. The shared secret is
// exchanged out of band; only the derived signing key is stored. The partial
// unique index rejects a second active connection for the same user.
func (s *SyncService) Connect(ctx context.Context, userID, remoteBaseURL, sharedSecret string) (*models.SyncConnection, error) {
	if remoteBaseURL == "" || sharedSecret == "" {
		return nil, fmt.Errorf("%w: remote url and shared secret are required", common.ErrorValidation)
	}

	key := cryptox.DeriveSigningKey(sharedSecret)

	conn, err := s.repomanager.Connections(s.db).Create(ctx, &models.SyncConnection{
		UserID:         userID,
		RemoteBaseURL:  remoteBaseURL,
		SigningKeyHash: cryptox.EncodeSigningKey(key),
		Status:         models.ConnectionActive,
	})
	if err != nil {
		if errors.Is(err, common.ErrorDuplicate) {
			return nil, fmt.Errorf("%w: an active connection already exists", common.ErrorValidation)
		}
		return nil, err
	}
	return conn, nil
}

// VerifyPeerRequest authenticates an inbound peer call by trying the
// signature against every active connection on this instance. A revoked
// connection is absent from the set, so its holder fails exactly like a
// stranger.
func (s *SyncService) VerifyPeerRequest(ctx context.Context, body []byte, signature string) (*models.SyncConnection, error) {
	if signature == "" {
		return nil, common.ErrorUnauthorized
	}

	active, err := s.repomanager.Connections(s.db).ListActive(ctx)
	if err != nil {
		return nil, err
	}

	for _, conn := range active {
		key, err := cryptox.DecodeSigningKey(conn.SigningKeyHash)
		if err != nil {
			s.logger.Error(ctx, "undecodable signing key", "connection_id", conn.ID)
			continue
		}
		if cryptox.Verify(key, body, signature) {
			return conn, nil
		}
	}
	return nil, common.ErrorUnauthorized
}

// HandlePull serves the peer's pull: outbox rows with id > sinceID, ascending,
// at most limit. Without enabled links nothing is shared.
func (s *SyncService) HandlePull(ctx context.Context, conn *models.SyncConnection, sinceID int64, limit int) (*syncwire.PullResponse, error) {
	if limit <= 0 || limit > s.pullLimit {
		limit = s.pullLimit
	}

	enabled, err := s.repomanager.Links(s.db).HasEnabledLinks(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return &syncwire.PullResponse{Events: []syncwire.PullEvent{}, LastOutboxID: sinceID}, nil
	}

	entries, err := s.repomanager.Outbox(s.db).ListAfter(ctx, conn.ID, sinceID, limit)
	if err != nil {
		return nil, err
	}

	resp := &syncwire.PullResponse{Events: make([]syncwire.PullEvent, 0, len(entries))}
	for _, e := range entries {
		resp.Events = append(resp.Events, syncwire.PullEvent{
			ID:         e.ID,
			EntityType: e.EntityType,
			EntityUID:  e.EntityUID,
			Operation:  e.Operation,
			Payload:    e.Payload,
		})
	}

	resp.LastOutboxID, err = s.repomanager.Outbox(s.db).LastID(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// applyEvent applies one replicated snapshot inside tx. Returns false when
// the event is skipped (excluded link, nothing mapped, undecodable payload).
func (s *SyncService) applyEvent(ctx context.Context, tx dbx.DBTX, conn *models.SyncConnection, ev syncwire.PullEvent) (bool, error) {
	snap, err := models.DecodeSnapshot(ev.Payload)
	if err != nil {
		s.logger.Warn(ctx, "skipping undecodable sync event", "connection_id", conn.ID, "entity_uid", ev.EntityUID, "error", err)
		return false, nil
	}

	switch snap.EntityType {
	case models.EntityPerson:
		return s.applyPersonEvent(ctx, tx, conn, snap.Person, ev.Operation)
	case models.EntityMoment:
		return s.applyMomentEvent(ctx, tx, conn, snap.Moment, ev.Operation)
	}
	return false, nil
}

func (s *SyncService) applyPersonEvent(ctx context.Context, tx dbx.DBTX, conn *models.SyncConnection, snap *models.PersonSnapshot, operation string) (bool, error) {
	link, err := s.repomanager.Links(tx).GetByRemoteUID(ctx, conn.ID, snap.PersonUID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return false, err
		}
		// Unknown remote person: surface a pending candidate for the
		// matching flow instead of creating anything.
		_, err = s.repomanager.Candidates(tx).Upsert(ctx, &models.SyncPersonCandidate{
			UserID:          conn.UserID,
			ConnectionID:    conn.ID,
			RemotePersonUID: snap.PersonUID,
			RemoteName:      snap.Name,
			Confidence:      0,
			Reasons:         []string{"incoming event"},
			Status:          models.CandidatePending,
		})
		return false, err
	}

	if link.LinkStatus != models.LinkStatusLinked || !link.IsEnabled || link.LocalPersonID == nil {
		return false, nil
	}

	person, err := s.repomanager.People(tx).GetByID(ctx, conn.UserID, *link.LocalPersonID)
	if err != nil {
		return false, err
	}

	archived := snap.Archived || operation == models.OpDelete

	if person.PersonUID == snap.PersonUID {
		// The local row was created from the remote one and shares its uid,
		// so the remote snapshot is authoritative.
		person.Name = snap.Name
		person.RelationshipType = snap.RelationshipType
	}
	// A manually linked person keeps the local name; only archival crosses.
	person.Archived = archived

	if err := s.repomanager.People(tx).Update(ctx, person); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SyncService) applyMomentEvent(ctx context.Context, tx dbx.DBTX, conn *models.SyncConnection, snap *models.MomentSnapshot, operation string) (bool, error) {
	var partnerIDs []string
	for _, uid := range snap.PartnerUIDs {
		link, err := s.repomanager.Links(tx).GetByRemoteUID(ctx, conn.ID, uid)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			return false, err
		}
		if link.LinkStatus == models.LinkStatusLinked && link.IsEnabled && link.LocalPersonID != nil {
			partnerIDs = append(partnerIDs, *link.LocalPersonID)
		}
	}
	if len(partnerIDs) == 0 {
		// None of the moment's partners map locally.
		return false, nil
	}

	moment := &models.Moment{
		UserID:      conn.UserID,
		MomentUID:   snap.MomentUID,
		Title:       snap.Title,
		Date:        snap.Date,
		Description: snap.Description,
		Recurring:   snap.Recurring,
		PartnerIDs:  partnerIDs,
	}
	if snap.Deleted || operation == models.OpDelete {
		now := time.Now().UTC()
		moment.DeletedAt = &now
	}

	if _, err := s.repomanager.Moments(tx).UpsertByUID(ctx, moment); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyEvents replays a pulled batch in one transaction and advances the
// cursor only afterwards, so a crash mid-batch re-pulls it (at-least-once;
// snapshots make replay harmless).
func (s *SyncService) ApplyEvents(ctx context.Context, conn *models.SyncConnection, events []syncwire.PullEvent) (applied int, err error) {
	if len(events) == 0 {
		return 0, nil
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var lastID int64
		for _, ev := range events {
			ok, err := s.applyEvent(ctx, tx, conn, ev)
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
			if ev.ID > lastID {
				lastID = ev.ID
			}
		}
		if lastID > 0 {
			return s.repomanager.Outbox(tx).AdvanceCursor(ctx, conn.UserID, conn.ID, lastID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// RunPull executes one pull pass for the user's active connection. Transient
// peer failures are retried with exponential backoff.
func (s *SyncService) RunPull(ctx context.Context, userID string) (int, error) {
	conn, err := s.repomanager.Connections(s.db).GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrNoActiveConnection
		}
		return 0, err
	}
	return s.pullConnection(ctx, conn)
}

func (s *SyncService) pullConnection(ctx context.Context, conn *models.SyncConnection) (int, error) {
	enabled, err := s.repomanager.Links(s.db).HasEnabledLinks(ctx, conn.ID)
	if err != nil {
		return 0, err
	}
	if !enabled {
		return 0, nil
	}

	cursor, err := s.repomanager.Outbox(s.db).GetCursor(ctx, conn.UserID, conn.ID)
	if err != nil {
		return 0, err
	}

	var resp *syncwire.PullResponse
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		resp, err = s.peer.Pull(ctx, conn, cursor.LastPulledOutboxID, s.pullLimit)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return s.ApplyEvents(ctx, conn, resp.Events)
}

// SyncAll runs one pull pass over every active connection; used by the
// background scheduler. Per-connection failures are logged and skipped.
func (s *SyncService) SyncAll(ctx context.Context) {
	active, err := s.repomanager.Connections(s.db).ListActive(ctx)
	if err != nil {
		s.logger.Error(ctx, "listing connections for scheduled sync", "error", err)
		return
	}
	for _, conn := range active {
		n, err := s.pullConnection(ctx, conn)
		if err != nil {
			s.logger.Warn(ctx, "scheduled pull failed", "connection_id", conn.ID, "error", err)
			continue
		}
		if n > 0 {
			s.logger.Info(ctx, "scheduled pull applied events", "connection_id", conn.ID, "events", n)
		}
	}
}

// HandlePush is the receiving side of a peer-initiated push. Events carry no
// outbox ids, so no cursor moves.
func (s *SyncService) HandlePush(ctx context.Context, conn *models.SyncConnection, events []syncwire.PushEvent) (applied int, err error) {
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, ev := range events {
			ok, err := s.applyEvent(ctx, tx, conn, syncwire.PullEvent{
				EntityType: ev.EntityType,
				EntityUID:  ev.EntityUID,
				Operation:  ev.Operation,
				Payload:    ev.Payload,
			})
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// PushPending eagerly delivers unqueued-on-the-peer outbox rows; a rejection
// surfaces to the caller, and the peer's next pull still covers the rows.
func (s *SyncService) PushPending(ctx context.Context, userID string, sinceID int64) (int, error) {
	conn, err := s.repomanager.Connections(s.db).GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrNoActiveConnection
		}
		return 0, err
	}

	entries, err := s.repomanager.Outbox(s.db).ListAfter(ctx, conn.ID, sinceID, s.pullLimit)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	events := make([]syncwire.PushEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, syncwire.PushEvent{
			EntityType: e.EntityType,
			EntityUID:  e.EntityUID,
			Operation:  e.Operation,
			Payload:    e.Payload,
		})
	}

	if err := s.peer.Push(ctx, conn, events); err != nil {
		return 0, err
	}
	return len(events), nil
}

// Backfill enqueues snapshots for every already-existing entity of the
// connection's linked people, skipping anything already queued. Safe to
// re-run.
func (s *SyncService) Backfill(ctx context.Context, userID string) (int, error) {
	conn, err := s.repomanager.Connections(s.db).GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrNoActiveConnection
		}
		return 0, err
	}

	connLinks, err := s.repomanager.Links(s.db).ListByConnection(ctx, conn.ID)
	if err != nil {
		return 0, err
	}

	var enqueued atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillConcurrency)

	for _, link := range connLinks {
		if link.LinkStatus != models.LinkStatusLinked || !link.IsEnabled || link.LocalPersonID == nil {
			continue
		}
		personID := *link.LocalPersonID

		g.Go(func() error {
			n, err := s.backfillPerson(gctx, conn, personID)
			enqueued.Add(int64(n))
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return int(enqueued.Load()), err
	}
	return int(enqueued.Load()), nil
}

func (s *SyncService) backfillPerson(ctx context.Context, conn *models.SyncConnection, personID string) (int, error) {
	person, err := s.repomanager.People(s.db).GetByID(ctx, conn.UserID, personID)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	exists, err := s.repomanager.Outbox(s.db).Exists(ctx, conn.ID, models.EntityPerson, person.PersonUID)
	if err != nil {
		return enqueued, err
	}
	if !exists {
		if err := appendSnapshot(ctx, s.repomanager, s.db, conn.UserID, conn.ID, models.OpUpsert, models.NewPersonSnapshot(person)); err != nil {
			return enqueued, err
		}
		enqueued++
	}

	personMoments, err := s.repomanager.Moments(s.db).ListByPartner(ctx, conn.UserID, personID)
	if err != nil {
		return enqueued, err
	}
	for _, m := range personMoments {
		exists, err := s.repomanager.Outbox(s.db).Exists(ctx, conn.ID, models.EntityMoment, m.MomentUID)
		if err != nil {
			return enqueued, err
		}
		if exists {
			continue
		}

		partnerUIDs := make([]string, 0, len(m.PartnerIDs))
		for _, pid := range m.PartnerIDs {
			p, err := s.repomanager.People(s.db).GetByID(ctx, conn.UserID, pid)
			if err != nil {
				return enqueued, err
			}
			partnerUIDs = append(partnerUIDs, p.PersonUID)
		}

		if err := appendSnapshot(ctx, s.repomanager, s.db, conn.UserID, conn.ID, models.OpUpsert, models.NewMomentSnapshot(m, partnerUIDs)); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

// Revoke cuts the connection. The local row flips to revoked unconditionally
// before the peer is told; an unreachable peer never holds the trust open.
func (s *SyncService) Revoke(ctx context.Context, userID string) (*RevokeResult, error) {
	conn, err := s.repomanager.Connections(s.db).GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNoActiveConnection
		}
		return nil, err
	}

	if err := s.repomanager.Connections(s.db).Revoke(ctx, conn.ID); err != nil {
		return nil, err
	}

	result := &RevokeResult{LocalRevoked: true}
	if err := s.peer.Revoke(ctx, conn, userID); err != nil {
		s.logger.Warn(ctx, "peer revoke notification failed", "connection_id", conn.ID, "error", err)
	} else {
		result.RemoteNotified = true
	}
	return result, nil
}

// HandleRevoke processes a peer-initiated revocation. Idempotent.
func (s *SyncService) HandleRevoke(ctx context.Context, conn *models.SyncConnection) error {
	return s.repomanager.Connections(s.db).Revoke(ctx, conn.ID)
}

// ListPeopleForPeer exposes the user's active people to the authenticated
// peer for matching. Archived and tombstoned people stay private.
func (s *SyncService) ListPeopleForPeer(ctx context.Context, conn *models.SyncConnection) ([]syncwire.RemotePerson, error) {
	active, err := s.repomanager.People(s.db).ListActive(ctx, conn.UserID)
	if err != nil {
		return nil, err
	}

	out := make([]syncwire.RemotePerson, 0, len(active))
	for _, p := range active {
		out = append(out, syncwire.RemotePerson{
			PersonUID:         p.PersonUID,
			Name:              p.Name,
			RelationshipLabel: p.RelationshipType,
		})
	}
	return out, nil
}

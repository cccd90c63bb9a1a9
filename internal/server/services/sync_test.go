package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/cryptox"
	"github.com/cherishly/cherishly/internal/logging"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/cherishly/cherishly/internal/server/syncwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakePeer scripts the remote side of the protocol.
type fakePeer struct {
	pullResp   *syncwire.PullResponse
	pullErr    error
	pushErr    error
	revokeErr  error
	people     []syncwire.RemotePerson
	peopleErr  error
	pushEvents []syncwire.PushEvent
	revoked    bool
}

func (p *fakePeer) Pull(ctx context.Context, conn *models.SyncConnection, sinceOutboxID int64, limit int) (*syncwire.PullResponse, error) {
	if p.pullErr != nil {
		return nil, p.pullErr
	}
	return p.pullResp, nil
}

func (p *fakePeer) Push(ctx context.Context, conn *models.SyncConnection, events []syncwire.PushEvent) error {
	p.pushEvents = append(p.pushEvents, events...)
	return p.pushErr
}

func (p *fakePeer) Revoke(ctx context.Context, conn *models.SyncConnection, revokedBy string) error {
	if p.revokeErr != nil {
		return p.revokeErr
	}
	p.revoked = true
	return nil
}

func (p *fakePeer) ListPeople(ctx context.Context, conn *models.SyncConnection) ([]syncwire.RemotePerson, error) {
	return p.people, p.peopleErr
}

func newSyncService(f *fakeRepos, peer peerCaller) *SyncService {
	return NewSyncService(openTxDB(), f, peer, testConfig(), testLogger())
}

// seedConnection creates a user with an active connection and one linked,
// enabled person. Returns the connection and the local person.
func seedConnection(t *testing.T, f *fakeRepos) (*models.SyncConnection, *models.Person) {
	t.Helper()
	ctx := context.Background()

	user := seedUser(t, f, models.PlanPremium)
	person, err := fakePeople{f}.Create(ctx, &models.Person{
		UserID:           user.ID,
		PersonUID:        "local-uid-1",
		Name:             "Alice Example",
		RelationshipType: "friend",
	})
	require.NoError(t, err)

	key := cryptox.DeriveSigningKey("shared-secret")
	conn, err := fakeConnections{f}.Create(ctx, &models.SyncConnection{
		UserID:         user.ID,
		RemoteBaseURL:  "https://peer.example",
		SigningKeyHash: cryptox.EncodeSigningKey(key),
		Status:         models.ConnectionActive,
	})
	require.NoError(t, err)

	_, err = fakeLinks{f}.Upsert(ctx, &models.SyncPersonLink{
		UserID:          user.ID,
		ConnectionID:    conn.ID,
		LocalPersonID:   &person.ID,
		RemotePersonUID: "remote-uid-1",
		LinkStatus:      models.LinkStatusLinked,
		IsEnabled:       true,
	})
	require.NoError(t, err)

	return conn, person
}

func appendTestEntry(t *testing.T, f *fakeRepos, conn *models.SyncConnection, snap models.Snapshot) *models.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(snap)
	require.NoError(t, err)
	entry, err := fakeOutbox{f}.Append(context.Background(), &models.OutboxEntry{
		UserID:       conn.UserID,
		ConnectionID: conn.ID,
		EntityType:   snap.EntityType,
		EntityUID:    snap.EntityUID(),
		Operation:    models.OpUpsert,
		Payload:      payload,
	})
	require.NoError(t, err)
	return entry
}

func TestConnectRejectsSecondActiveConnection(t *testing.T) {
	f := newFakeRepos()
	user := seedUser(t, f, models.PlanPremium)
	s := newSyncService(f, &fakePeer{})

	_, err := s.Connect(context.Background(), user.ID, "https://peer.example", "secret-one")
	require.NoError(t, err)

	_, err = s.Connect(context.Background(), user.ID, "https://other.example", "secret-two")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestVerifyPeerRequest(t *testing.T) {
	f := newFakeRepos()
	conn, _ := seedConnection(t, f)
	s := newSyncService(f, &fakePeer{})

	body := []byte(`{"since_outbox_id":0}`)
	sig := cryptox.Sign(cryptox.DeriveSigningKey("shared-secret"), body)

	got, err := s.VerifyPeerRequest(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, got.ID)

	_, err = s.VerifyPeerRequest(context.Background(), body, cryptox.Sign(cryptox.DeriveSigningKey("wrong"), body))
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	// A revoked connection fails exactly like an unknown one.
	require.NoError(t, fakeConnections{f}.Revoke(context.Background(), conn.ID))
	_, err = s.VerifyPeerRequest(context.Background(), body, sig)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestHandlePullRespectsSinceAndLimit(t *testing.T) {
	f := newFakeRepos()
	conn, person := seedConnection(t, f)
	s := newSyncService(f, &fakePeer{})

	for i := 0; i < 5; i++ {
		appendTestEntry(t, f, conn, models.NewPersonSnapshot(person))
	}

	resp, err := s.HandlePull(context.Background(), conn, 2, 2)
	require.NoError(t, err)

	require.Len(t, resp.Events, 2)
	for _, ev := range resp.Events {
		assert.Greater(t, ev.ID, int64(2))
	}
	assert.Equal(t, int64(3), resp.Events[0].ID)
	assert.Equal(t, int64(4), resp.Events[1].ID)
	assert.Equal(t, int64(5), resp.LastOutboxID)
}

func TestHandlePullWithoutEnabledLinksSharesNothing(t *testing.T) {
	f := newFakeRepos()
	conn, person := seedConnection(t, f)
	s := newSyncService(f, &fakePeer{})

	appendTestEntry(t, f, conn, models.NewPersonSnapshot(person))

	// Disable the only link.
	link, err := fakeLinks{f}.GetByRemoteUID(context.Background(), conn.ID, "remote-uid-1")
	require.NoError(t, err)
	link.IsEnabled = false
	_, err = fakeLinks{f}.Upsert(context.Background(), link)
	require.NoError(t, err)

	resp, err := s.HandlePull(context.Background(), conn, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, resp.Events)
}

func TestApplyEventsMomentIdempotent(t *testing.T) {
	f := newFakeRepos()
	conn, person := seedConnection(t, f)
	s := newSyncService(f, &fakePeer{})

	snap := models.Snapshot{
		Version:    models.SnapshotVersion,
		EntityType: models.EntityMoment,
		Moment: &models.MomentSnapshot{
			MomentUID:   "m-uid-1",
			Title:       "Anniversary dinner",
			Date:        time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			PartnerUIDs: []string{"remote-uid-1"},
		},
	}
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	events := []syncwire.PullEvent{{
		ID:         7,
		EntityType: models.EntityMoment,
		EntityUID:  "m-uid-1",
		Operation:  models.OpUpsert,
		Payload:    payload,
	}}

	for i := 0; i < 2; i++ {
		applied, err := s.ApplyEvents(context.Background(), conn, events)
		require.NoError(t, err)
		assert.Equal(t, 1, applied)
	}

	local, err := fakeMoments{f}.ListByPartner(context.Background(), conn.UserID, person.ID)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, "Anniversary dinner", local[0].Title)

	cursor, err := fakeOutbox{f}.GetCursor(context.Background(), conn.UserID, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cursor.LastPulledOutboxID)
}

func TestApplyEventsUnknownPersonBecomesCandidate(t *testing.T) {
	f := newFakeRepos()
	conn, _ := seedConnection(t, f)
	s := newSyncService(f, &fakePeer{})

	snap := models.Snapshot{
		Version:    models.SnapshotVersion,
		EntityType: models.EntityPerson,
		Person:     &models.PersonSnapshot{PersonUID: "stranger-uid", Name: "Sam Stranger"},
	}
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	applied, err := s.ApplyEvents(context.Background(), conn, []syncwire.PullEvent{{
		ID:         1,
		EntityType: models.EntityPerson,
		EntityUID:  "stranger-uid",
		Operation:  models.OpUpsert,
		Payload:    payload,
	}})
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	pending, err := fakeCandidates{f}.ListPending(context.Background(), conn.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Sam Stranger", pending[0].RemoteName)

	// No person row was created behind the user's back.
	_, err = fakePeople{f}.GetByUID(context.Background(), conn.UserID, "stranger-uid")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRunPullAdvancesCursorOnlyOnSuccess(t *testing.T) {
	f := newFakeRepos()
	conn, _ := seedConnection(t, f)

	snap := models.Snapshot{
		Version:    models.SnapshotVersion,
		EntityType: models.EntityPerson,
		Person:     &models.PersonSnapshot{PersonUID: "remote-uid-1", Name: "Alicia"},
	}
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	peer := &fakePeer{pullResp: &syncwire.PullResponse{
		Events: []syncwire.PullEvent{{
			ID:         12,
			EntityType: models.EntityPerson,
			EntityUID:  "remote-uid-1",
			Operation:  models.OpUpsert,
			Payload:    payload,
		}},
		LastOutboxID: 12,
	}}
	s := newSyncService(f, peer)

	applied, err := s.RunPull(context.Background(), conn.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	cursor, err := fakeOutbox{f}.GetCursor(context.Background(), conn.UserID, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), cursor.LastPulledOutboxID)

	// A failing peer leaves the cursor alone.
	peer.pullResp = nil
	peer.pullErr = errors.New("peer down")
	_, err = s.RunPull(context.Background(), conn.UserID)
	require.Error(t, err)

	cursor, err = fakeOutbox{f}.GetCursor(context.Background(), conn.UserID, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), cursor.LastPulledOutboxID)
}

func TestRunPullWithoutConnection(t *testing.T) {
	f := newFakeRepos()
	user := seedUser(t, f, models.PlanPremium)
	s := newSyncService(f, &fakePeer{})

	_, err := s.RunPull(context.Background(), user.ID)
	assert.ErrorIs(t, err, common.ErrNoActiveConnection)
}

func TestPushPendingDeliversOutbox(t *testing.T) {
	f := newFakeRepos()
	conn, person := seedConnection(t, f)
	peer := &fakePeer{}
	s := newSyncService(f, peer)

	appendTestEntry(t, f, conn, models.NewPersonSnapshot(person))
	appendTestEntry(t, f, conn, models.NewPersonSnapshot(person))

	pushed, err := s.PushPending(context.Background(), conn.UserID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, pushed)
	require.Len(t, peer.pushEvents, 2)
	assert.Equal(t, person.PersonUID, peer.pushEvents[0].EntityUID)
}

func TestPushPendingSurfacesRejection(t *testing.T) {
	f := newFakeRepos()
	conn, person := seedConnection(t, f)
	s := newSyncService(f, &fakePeer{pushErr: common.ErrPeerRejected})

	appendTestEntry(t, f, conn, models.NewPersonSnapshot(person))

	_, err := s.PushPending(context.Background(), conn.UserID, 0)
	assert.ErrorIs(t, err, common.ErrPeerRejected)
}

func TestBackfillSkipsAlreadyQueued(t *testing.T) {
	f := newFakeRepos()
	conn, person := seedConnection(t, f)
	s := newSyncService(f, &fakePeer{})

	_, err := fakeMoments{f}.Create(context.Background(), &models.Moment{
		UserID:     conn.UserID,
		MomentUID:  "m-uid-bf",
		Title:      "First date",
		Date:       time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC),
		PartnerIDs: []string{person.ID},
	})
	require.NoError(t, err)

	enqueued, err := s.Backfill(context.Background(), conn.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, enqueued) // person + moment

	enqueued, err = s.Backfill(context.Background(), conn.UserID)
	require.NoError(t, err)
	assert.Equal(t, 0, enqueued)
}

func TestRevokeLocalFirstPeerBestEffort(t *testing.T) {
	f := newFakeRepos()
	conn, _ := seedConnection(t, f)
	s := newSyncService(f, &fakePeer{revokeErr: errors.New("unreachable")})

	result, err := s.Revoke(context.Background(), conn.UserID)
	require.NoError(t, err)

	assert.True(t, result.LocalRevoked)
	assert.False(t, result.RemoteNotified)

	_, err = fakeConnections{f}.GetActiveByUser(context.Background(), conn.UserID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListPeopleForPeerExcludesArchived(t *testing.T) {
	f := newFakeRepos()
	conn, person := seedConnection(t, f)
	s := newSyncService(f, &fakePeer{})

	archived, err := fakePeople{f}.Create(context.Background(), &models.Person{
		UserID:    conn.UserID,
		PersonUID: "archived-uid",
		Name:      "Old Friend",
		Archived:  true,
	})
	require.NoError(t, err)
	_ = archived

	listed, err := s.ListPeopleForPeer(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, person.PersonUID, listed[0].PersonUID)
}

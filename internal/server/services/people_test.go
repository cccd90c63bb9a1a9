package services

import (
	"context"
	"testing"
	"time"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonCreateAssignsUID(t *testing.T) {
	f := newFakeRepos()
	user := seedUser(t, f, models.PlanFree)
	s := NewPeopleService(openTxDB(), f)

	person, err := s.Create(context.Background(), user.ID, "Alice", "friend")
	require.NoError(t, err)
	assert.NotEmpty(t, person.PersonUID)

	_, err = s.Create(context.Background(), user.ID, "", "friend")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestPersonUpdateEnqueuesWhenLinked(t *testing.T) {
	f := newFakeRepos()
	conn, person := seedConnection(t, f)
	s := NewPeopleService(openTxDB(), f)

	_, err := s.Update(context.Background(), conn.UserID, person.ID, "Alice Renamed", "friend")
	require.NoError(t, err)

	queued, err := fakeOutbox{f}.Exists(context.Background(), conn.ID, models.EntityPerson, person.PersonUID)
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestPersonUpdateUnlinkedStaysLocal(t *testing.T) {
	f := newFakeRepos()
	conn, _ := seedConnection(t, f)
	s := NewPeopleService(openTxDB(), f)

	loner, err := s.Create(context.Background(), conn.UserID, "Private Pat", "colleague")
	require.NoError(t, err)

	_, err = s.Update(context.Background(), conn.UserID, loner.ID, "Still Private", "colleague")
	require.NoError(t, err)

	queued, err := fakeOutbox{f}.Exists(context.Background(), conn.ID, models.EntityPerson, loner.PersonUID)
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestPersonArchiveReplicatesFlag(t *testing.T) {
	f := newFakeRepos()
	conn, person := seedConnection(t, f)
	s := NewPeopleService(openTxDB(), f)

	require.NoError(t, s.Archive(context.Background(), conn.UserID, person.ID))

	entries, err := fakeOutbox{f}.ListAfter(context.Background(), conn.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	snap, err := models.DecodeSnapshot(entries[0].Payload)
	require.NoError(t, err)
	assert.True(t, snap.Person.Archived)
}

func TestMomentLifecycleReplication(t *testing.T) {
	f := newFakeRepos()
	conn, person := seedConnection(t, f)
	s := NewMomentService(openTxDB(), f)
	ctx := context.Background()

	moment, err := s.Create(ctx, conn.UserID, "Birthday", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), "cake", true, []string{person.ID})
	require.NoError(t, err)

	entries, err := fakeOutbox{f}.ListAfter(ctx, conn.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	snap, err := models.DecodeSnapshot(entries[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, []string{person.PersonUID}, snap.Moment.PartnerUIDs)
	assert.False(t, snap.Moment.Deleted)

	require.NoError(t, s.Delete(ctx, conn.UserID, moment.ID))

	entries, err = fakeOutbox{f}.ListAfter(ctx, conn.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.OpDelete, entries[1].Operation)

	snap, err = models.DecodeSnapshot(entries[1].Payload)
	require.NoError(t, err)
	assert.True(t, snap.Moment.Deleted)
}

func TestMomentCreateValidatesPartners(t *testing.T) {
	f := newFakeRepos()
	user := seedUser(t, f, models.PlanFree)
	s := NewMomentService(openTxDB(), f)

	_, err := s.Create(context.Background(), user.ID, "Orphan", time.Now(), "", false, nil)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.Create(context.Background(), user.ID, "Ghost", time.Now(), "", false, []string{"missing"})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

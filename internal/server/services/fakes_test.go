package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/dbx"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/cherishly/cherishly/internal/server/repositories/allowance"
	"github.com/cherishly/cherishly/internal/server/repositories/candidates"
	"github.com/cherishly/cherishly/internal/server/repositories/conflicts"
	"github.com/cherishly/cherishly/internal/server/repositories/connections"
	"github.com/cherishly/cherishly/internal/server/repositories/links"
	"github.com/cherishly/cherishly/internal/server/repositories/mergelogs"
	"github.com/cherishly/cherishly/internal/server/repositories/moments"
	"github.com/cherishly/cherishly/internal/server/repositories/outbox"
	"github.com/cherishly/cherishly/internal/server/repositories/people"
	"github.com/cherishly/cherishly/internal/server/repositories/users"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openTxDB returns a throwaway sqlite handle used only as a transaction
// provider for dbx.WithTx; the fakes below keep all state in memory.
func openTxDB() *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		panic(err)
	}
	return db
}

// fakeRepos is an in-memory RepositoryManager. All factories share one store,
// mirroring how the Postgres repositories share one database.
type fakeRepos struct {
	mu sync.Mutex

	users     map[string]*models.User
	people    map[string]*models.Person
	moments   map[string]*models.Moment
	periods   map[string]*models.AllowancePeriod
	events    []*models.UsageEvent
	conns     map[string]*models.SyncConnection
	links     map[string]*models.SyncPersonLink
	cands     map[string]*models.SyncPersonCandidate
	outbox    []*models.OutboxEntry
	cursors   map[string]*models.SyncCursor
	conflicts map[string]*models.SyncConflict
	mergeLogs map[string]*models.MergeLog

	nextOutboxID int64
}

func newFakeRepos() *fakeRepos {
	return &fakeRepos{
		users:     map[string]*models.User{},
		people:    map[string]*models.Person{},
		moments:   map[string]*models.Moment{},
		periods:   map[string]*models.AllowancePeriod{},
		conns:     map[string]*models.SyncConnection{},
		links:     map[string]*models.SyncPersonLink{},
		cands:     map[string]*models.SyncPersonCandidate{},
		cursors:   map[string]*models.SyncCursor{},
		conflicts: map[string]*models.SyncConflict{},
		mergeLogs: map[string]*models.MergeLog{},
	}
}

func (f *fakeRepos) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (f *fakeRepos) Users(db dbx.DBTX) users.Repository             { return fakeUsers{f} }
func (f *fakeRepos) People(db dbx.DBTX) people.Repository           { return fakePeople{f} }
func (f *fakeRepos) Moments(db dbx.DBTX) moments.Repository         { return fakeMoments{f} }
func (f *fakeRepos) Allowance(db dbx.DBTX) allowance.Repository     { return fakeAllowance{f} }
func (f *fakeRepos) Connections(db dbx.DBTX) connections.Repository { return fakeConnections{f} }
func (f *fakeRepos) Links(db dbx.DBTX) links.Repository             { return fakeLinks{f} }
func (f *fakeRepos) Candidates(db dbx.DBTX) candidates.Repository   { return fakeCandidates{f} }
func (f *fakeRepos) Outbox(db dbx.DBTX) outbox.Repository           { return fakeOutbox{f} }
func (f *fakeRepos) Conflicts(db dbx.DBTX) conflicts.Repository     { return fakeConflicts{f} }
func (f *fakeRepos) MergeLogs(db dbx.DBTX) mergelogs.Repository     { return fakeMergeLogs{f} }

func copyPerson(p *models.Person) *models.Person { c := *p; return &c }
func copyMoment(m *models.Moment) *models.Moment {
	c := *m
	c.PartnerIDs = append([]string(nil), m.PartnerIDs...)
	return &c
}
func copyLink(l *models.SyncPersonLink) *models.SyncPersonLink {
	c := *l
	if l.LocalPersonID != nil {
		id := *l.LocalPersonID
		c.LocalPersonID = &id
	}
	return &c
}

type fakeUsers struct{ f *fakeRepos }

func (r fakeUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.users {
		if existing.Email == u.Email {
			return nil, common.ErrorDuplicate
		}
	}
	c := *u
	c.ID = uuid.NewString()
	r.f.users[c.ID] = &c
	out := c
	return &out, nil
}

func (r fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, u := range r.f.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	u, ok := r.f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r fakeUsers) SetPlan(ctx context.Context, id string, plan string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	u, ok := r.f.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.Plan = plan
	return nil
}

type fakePeople struct{ f *fakeRepos }

func (r fakePeople) Create(ctx context.Context, p *models.Person) (*models.Person, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	c := *p
	c.ID = uuid.NewString()
	r.f.people[c.ID] = &c
	return copyPerson(&c), nil
}

func (r fakePeople) GetByID(ctx context.Context, userID, id string) (*models.Person, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	p, ok := r.f.people[id]
	if !ok || p.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return copyPerson(p), nil
}

func (r fakePeople) GetByUID(ctx context.Context, userID, personUID string) (*models.Person, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, p := range r.f.people {
		if p.UserID == userID && p.PersonUID == personUID {
			return copyPerson(p), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakePeople) ListActive(ctx context.Context, userID string) ([]*models.Person, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Person
	for _, p := range r.f.people {
		if p.UserID == userID && !p.Archived && !p.Tombstoned() {
			out = append(out, copyPerson(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r fakePeople) Update(ctx context.Context, p *models.Person) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	existing, ok := r.f.people[p.ID]
	if !ok || existing.UserID != p.UserID {
		return common.ErrorNotFound
	}
	r.f.people[p.ID] = copyPerson(p)
	return nil
}

func (r fakePeople) Archive(ctx context.Context, userID, id string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	p, ok := r.f.people[id]
	if !ok || p.UserID != userID {
		return common.ErrorNotFound
	}
	p.Archived = true
	return nil
}

func (r fakePeople) UpsertByUID(ctx context.Context, p *models.Person) (*models.Person, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.people {
		if existing.UserID == p.UserID && existing.PersonUID == p.PersonUID {
			existing.Name = p.Name
			existing.RelationshipType = p.RelationshipType
			existing.Archived = p.Archived
			return copyPerson(existing), nil
		}
	}
	c := *p
	c.ID = uuid.NewString()
	r.f.people[c.ID] = &c
	return copyPerson(&c), nil
}

func (r fakePeople) Tombstone(ctx context.Context, userID, id, mergedIntoID string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	p, ok := r.f.people[id]
	if !ok || p.UserID != userID {
		return common.ErrorNotFound
	}
	p.Archived = true
	p.MergedIntoPersonID = &mergedIntoID
	return nil
}

func (r fakePeople) Revive(ctx context.Context, userID, id string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	p, ok := r.f.people[id]
	if !ok || p.UserID != userID {
		return common.ErrorNotFound
	}
	p.Archived = false
	p.MergedIntoPersonID = nil
	return nil
}

func (r fakePeople) RepointDependents(ctx context.Context, userID, fromID, toID string) error {
	return nil
}

type fakeMoments struct{ f *fakeRepos }

func (r fakeMoments) Create(ctx context.Context, m *models.Moment) (*models.Moment, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	c := copyMoment(m)
	c.ID = uuid.NewString()
	r.f.moments[c.ID] = c
	return copyMoment(c), nil
}

func (r fakeMoments) GetByID(ctx context.Context, userID, id string) (*models.Moment, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	m, ok := r.f.moments[id]
	if !ok || m.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return copyMoment(m), nil
}

func (r fakeMoments) Update(ctx context.Context, m *models.Moment) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	existing, ok := r.f.moments[m.ID]
	if !ok || existing.UserID != m.UserID {
		return common.ErrorNotFound
	}
	r.f.moments[m.ID] = copyMoment(m)
	return nil
}

func (r fakeMoments) SoftDelete(ctx context.Context, userID, id string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	m, ok := r.f.moments[id]
	if !ok || m.UserID != userID {
		return common.ErrorNotFound
	}
	now := time.Now().UTC()
	m.DeletedAt = &now
	return nil
}

func (r fakeMoments) ListByPartner(ctx context.Context, userID, personID string) ([]*models.Moment, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.Moment
	for _, m := range r.f.moments {
		if m.UserID == userID && m.DeletedAt == nil && m.HasPartner(personID) {
			out = append(out, copyMoment(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (r fakeMoments) SetPartnerIDs(ctx context.Context, userID, id string, partnerIDs []string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	m, ok := r.f.moments[id]
	if !ok || m.UserID != userID {
		return common.ErrorNotFound
	}
	m.PartnerIDs = append([]string(nil), partnerIDs...)
	return nil
}

func (r fakeMoments) UpsertByUID(ctx context.Context, m *models.Moment) (*models.Moment, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.moments {
		if existing.UserID == m.UserID && existing.MomentUID == m.MomentUID {
			existing.Title = m.Title
			existing.Date = m.Date
			existing.Description = m.Description
			existing.Recurring = m.Recurring
			existing.PartnerIDs = append([]string(nil), m.PartnerIDs...)
			existing.DeletedAt = m.DeletedAt
			return copyMoment(existing), nil
		}
	}
	c := copyMoment(m)
	c.ID = uuid.NewString()
	r.f.moments[c.ID] = c
	return copyMoment(c), nil
}

type fakeAllowance struct{ f *fakeRepos }

func (r fakeAllowance) GetPeriodCovering(ctx context.Context, userID string, at time.Time) (*models.AllowancePeriod, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, p := range r.f.periods {
		if p.UserID == userID && p.Covers(at) {
			c := *p
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeAllowance) GetLatestPeriod(ctx context.Context, userID string) (*models.AllowancePeriod, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var latest *models.AllowancePeriod
	for _, p := range r.f.periods {
		if p.UserID == userID && (latest == nil || p.PeriodStart.After(latest.PeriodStart)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, common.ErrorNotFound
	}
	c := *latest
	return &c, nil
}

func (r fakeAllowance) InsertPeriod(ctx context.Context, period *models.AllowancePeriod) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, p := range r.f.periods {
		if p.UserID == period.UserID && p.PeriodStart.Equal(period.PeriodStart) {
			return false, nil
		}
	}
	c := *period
	c.ID = uuid.NewString()
	r.f.periods[c.ID] = &c
	period.ID = c.ID
	return true, nil
}

func (r fakeAllowance) IncrementUsage(ctx context.Context, periodID string, tokens int64) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	p, ok := r.f.periods[periodID]
	if !ok {
		return common.ErrorNotFound
	}
	p.TokensUsed += tokens
	return nil
}

func (r fakeAllowance) Override(ctx context.Context, periodID string, granted, used int64) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	p, ok := r.f.periods[periodID]
	if !ok {
		return common.ErrorNotFound
	}
	p.TokensGranted = granted
	p.TokensUsed = used
	return nil
}

func (r fakeAllowance) InsertUsageEvent(ctx context.Context, event *models.UsageEvent) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, e := range r.f.events {
		if e.UserID == event.UserID && e.IdempotencyKey == event.IdempotencyKey {
			return false, nil
		}
	}
	c := *event
	c.ID = uuid.NewString()
	r.f.events = append(r.f.events, &c)
	return true, nil
}

func (r fakeAllowance) ListUsageEvents(ctx context.Context, userID string, limit int) ([]*models.UsageEvent, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.UsageEvent
	for _, e := range r.f.events {
		if e.UserID == userID {
			c := *e
			out = append(out, &c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeConnections struct{ f *fakeRepos }

func (r fakeConnections) Create(ctx context.Context, conn *models.SyncConnection) (*models.SyncConnection, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, c := range r.f.conns {
		if c.UserID == conn.UserID && c.Status == models.ConnectionActive {
			return nil, common.ErrorDuplicate
		}
	}
	c := *conn
	c.ID = uuid.NewString()
	r.f.conns[c.ID] = &c
	out := c
	return &out, nil
}

func (r fakeConnections) GetByID(ctx context.Context, userID, id string) (*models.SyncConnection, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	c, ok := r.f.conns[id]
	if !ok || c.UserID != userID {
		return nil, common.ErrorNotFound
	}
	out := *c
	return &out, nil
}

func (r fakeConnections) GetActiveByUser(ctx context.Context, userID string) (*models.SyncConnection, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, c := range r.f.conns {
		if c.UserID == userID && c.Status == models.ConnectionActive {
			out := *c
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeConnections) ListActive(ctx context.Context) ([]*models.SyncConnection, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.SyncConnection
	for _, c := range r.f.conns {
		if c.Status == models.ConnectionActive {
			cc := *c
			out = append(out, &cc)
		}
	}
	return out, nil
}

func (r fakeConnections) Revoke(ctx context.Context, id string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if c, ok := r.f.conns[id]; ok {
		now := time.Now().UTC()
		c.Status = models.ConnectionRevoked
		c.RevokedAt = &now
	}
	return nil
}

type fakeLinks struct{ f *fakeRepos }

func (r fakeLinks) Upsert(ctx context.Context, link *models.SyncPersonLink) (*models.SyncPersonLink, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, l := range r.f.links {
		if l.ConnectionID == link.ConnectionID && l.RemotePersonUID == link.RemotePersonUID && l.UserID == link.UserID {
			l.LocalPersonID = link.LocalPersonID
			l.LinkStatus = link.LinkStatus
			l.IsEnabled = link.IsEnabled
			return copyLink(l), nil
		}
	}
	c := copyLink(link)
	c.ID = uuid.NewString()
	r.f.links[c.ID] = c
	return copyLink(c), nil
}

func (r fakeLinks) GetByRemoteUID(ctx context.Context, connectionID, remoteUID string) (*models.SyncPersonLink, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, l := range r.f.links {
		if l.ConnectionID == connectionID && l.RemotePersonUID == remoteUID {
			return copyLink(l), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeLinks) ListByConnection(ctx context.Context, connectionID string) ([]*models.SyncPersonLink, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.SyncPersonLink
	for _, l := range r.f.links {
		if l.ConnectionID == connectionID {
			out = append(out, copyLink(l))
		}
	}
	return out, nil
}

func (r fakeLinks) ListByPerson(ctx context.Context, userID, personID string) ([]*models.SyncPersonLink, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.SyncPersonLink
	for _, l := range r.f.links {
		if l.UserID == userID && l.LocalPersonID != nil && *l.LocalPersonID == personID {
			out = append(out, copyLink(l))
		}
	}
	return out, nil
}

func (r fakeLinks) HasEnabledLinks(ctx context.Context, connectionID string) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, l := range r.f.links {
		if l.ConnectionID == connectionID && l.LinkStatus == models.LinkStatusLinked && l.IsEnabled {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeLinks) SetLocalPerson(ctx context.Context, linkID, personID string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	l, ok := r.f.links[linkID]
	if !ok {
		return common.ErrorNotFound
	}
	l.LocalPersonID = &personID
	return nil
}

func (r fakeLinks) Delete(ctx context.Context, linkID string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	delete(r.f.links, linkID)
	return nil
}

func (r fakeLinks) Restore(ctx context.Context, link *models.SyncPersonLink) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.links[link.ID] = copyLink(link)
	return nil
}

type fakeCandidates struct{ f *fakeRepos }

func (r fakeCandidates) Upsert(ctx context.Context, c *models.SyncPersonCandidate) (*models.SyncPersonCandidate, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	key := c.ConnectionID + "/" + c.RemotePersonUID
	if existing, ok := r.f.cands[key]; ok {
		existing.LocalPersonID = c.LocalPersonID
		existing.RemoteName = c.RemoteName
		existing.Confidence = c.Confidence
		existing.Reasons = append([]string(nil), c.Reasons...)
		cc := *existing
		return &cc, nil
	}
	cc := *c
	cc.ID = uuid.NewString()
	r.f.cands[key] = &cc
	out := cc
	return &out, nil
}

func (r fakeCandidates) ListPending(ctx context.Context, connectionID string) ([]*models.SyncPersonCandidate, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.SyncPersonCandidate
	for _, c := range r.f.cands {
		if c.ConnectionID == connectionID && c.Status == models.CandidatePending {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func (r fakeCandidates) SetStatus(ctx context.Context, connectionID, remoteUID, status string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if c, ok := r.f.cands[connectionID+"/"+remoteUID]; ok {
		c.Status = status
	}
	return nil
}

type fakeOutbox struct{ f *fakeRepos }

func (r fakeOutbox) Append(ctx context.Context, entry *models.OutboxEntry) (*models.OutboxEntry, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	c := *entry
	r.f.nextOutboxID++
	c.ID = r.f.nextOutboxID
	r.f.outbox = append(r.f.outbox, &c)
	out := c
	return &out, nil
}

func (r fakeOutbox) ListAfter(ctx context.Context, connectionID string, sinceID int64, limit int) ([]*models.OutboxEntry, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.OutboxEntry
	for _, e := range r.f.outbox {
		if e.ConnectionID == connectionID && e.ID > sinceID {
			c := *e
			out = append(out, &c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r fakeOutbox) Exists(ctx context.Context, connectionID, entityType, entityUID string) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, e := range r.f.outbox {
		if e.ConnectionID == connectionID && e.EntityType == entityType && e.EntityUID == entityUID {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeOutbox) LastID(ctx context.Context, connectionID string) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var last int64
	for _, e := range r.f.outbox {
		if e.ConnectionID == connectionID && e.ID > last {
			last = e.ID
		}
	}
	return last, nil
}

func (r fakeOutbox) GetCursor(ctx context.Context, userID, connectionID string) (*models.SyncCursor, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if c, ok := r.f.cursors[userID+"/"+connectionID]; ok {
		cc := *c
		return &cc, nil
	}
	return &models.SyncCursor{UserID: userID, ConnectionID: connectionID}, nil
}

func (r fakeOutbox) AdvanceCursor(ctx context.Context, userID, connectionID string, lastPulledID int64) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	key := userID + "/" + connectionID
	c, ok := r.f.cursors[key]
	if !ok {
		c = &models.SyncCursor{UserID: userID, ConnectionID: connectionID}
		r.f.cursors[key] = c
	}
	if lastPulledID > c.LastPulledOutboxID {
		c.LastPulledOutboxID = lastPulledID
	}
	return nil
}

type fakeConflicts struct{ f *fakeRepos }

func (r fakeConflicts) Create(ctx context.Context, c *models.SyncConflict) (*models.SyncConflict, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	cc := *c
	cc.ID = uuid.NewString()
	r.f.conflicts[cc.ID] = &cc
	out := cc
	return &out, nil
}

func (r fakeConflicts) ListOpen(ctx context.Context, connectionID string) ([]*models.SyncConflict, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []*models.SyncConflict
	for _, c := range r.f.conflicts {
		if c.ConnectionID == connectionID && c.Resolution == nil {
			cc := *c
			out = append(out, &cc)
		}
	}
	return out, nil
}

func (r fakeConflicts) ResolveForRemoteUID(ctx context.Context, connectionID, remoteUID, resolution string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	now := time.Now().UTC()
	for _, c := range r.f.conflicts {
		if c.ConnectionID == connectionID && c.RemotePersonUID == remoteUID && c.Resolution == nil {
			res := resolution
			c.Resolution = &res
			c.ResolvedAt = &now
		}
	}
	return nil
}

type fakeMergeLogs struct{ f *fakeRepos }

func (r fakeMergeLogs) Create(ctx context.Context, log *models.MergeLog) (*models.MergeLog, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	c := *log
	c.ID = uuid.NewString()
	r.f.mergeLogs[c.ID] = &c
	out := c
	return &out, nil
}

func (r fakeMergeLogs) Get(ctx context.Context, userID, id string) (*models.MergeLog, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	l, ok := r.f.mergeLogs[id]
	if !ok || l.UserID != userID {
		return nil, common.ErrorNotFound
	}
	c := *l
	return &c, nil
}

func (r fakeMergeLogs) MarkUndone(ctx context.Context, userID, id string) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	l, ok := r.f.mergeLogs[id]
	if !ok || l.UserID != userID || l.UndoneAt != nil {
		return common.ErrorNotFound
	}
	now := time.Now().UTC()
	l.UndoneAt = &now
	return nil
}

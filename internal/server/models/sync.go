package models

import (
	"encoding/json"
	"time"
)

// Sync connection statuses.
const (
	ConnectionActive  = "active"
	ConnectionRevoked = "revoked"
)

// Link statuses.
const (
	LinkStatusLinked   = "linked"
	LinkStatusExcluded = "excluded"
	LinkStatusPending  = "pending"
)

// Candidate statuses.
const (
	CandidatePending  = "pending"
	CandidateAccepted = "accepted"
	CandidateRejected = "rejected"
)

// SyncConnection is the trust relationship between this instance and one
// remote instance for one user. SigningKeyHash is the stored (derived) HMAC
// key; the raw shared secret is never persisted. At most one active
// connection per user is enforced by a partial unique index.
type SyncConnection struct {
	ID             string
	UserID         string
	RemoteBaseURL  string
	SigningKeyHash string
	Status         string
	CreatedAt      time.Time
	RevokedAt      *time.Time
}

// SyncPersonLink maps a local person to a remote person_uid within one
// connection. At most one link per (connection, remote_person_uid, user).
// IsEnabled gates whether the person's moments replicate.
type SyncPersonLink struct {
	ID              string
	UserID          string
	ConnectionID    string
	LocalPersonID   *string
	RemotePersonUID string
	LinkStatus      string
	IsEnabled       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SyncPersonCandidate is a scored, unconfirmed match proposal. It is never
// auto-applied; an explicit user action turns it into a link.
type SyncPersonCandidate struct {
	ID              string
	UserID          string
	ConnectionID    string
	LocalPersonID   *string
	RemotePersonUID string
	RemoteName      string
	Confidence      float64
	Reasons         []string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Outbox operations.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Entity types carried through the outbox.
const (
	EntityPerson = "person"
	EntityMoment = "moment"
)

// OutboxEntry is an append-only queue row. IDs are strictly increasing;
// consumers read rows with id > cursor and never mutate them.
type OutboxEntry struct {
	ID           int64
	UserID       string
	ConnectionID string
	EntityType   string
	EntityUID    string
	Operation    string
	Payload      json.RawMessage
	CreatedAt    time.Time
}

// SyncCursor is the per (user, connection) high-water mark, advanced
// monotonically after each successfully applied pull batch.
type SyncCursor struct {
	UserID             string
	ConnectionID       string
	LastPulledOutboxID int64
	UpdatedAt          time.Time
}

// SyncConflict records a detected ambiguity (e.g. a name collision) awaiting
// an explicit link/merge/exclude resolution.
type SyncConflict struct {
	ID              string
	UserID          string
	ConnectionID    string
	RemotePersonUID string
	Kind            string
	Details         string
	Resolution      *string
	ResolvedAt      *time.Time
	CreatedAt       time.Time
}

// MergeLog is the undo record for a merge. Snapshot holds the full pre-merge
// state (see MergeSnapshot); UndoneAt marks single-use consumption.
type MergeLog struct {
	ID             string
	UserID         string
	KeptPersonID   string
	MergedPersonID string
	Snapshot       json.RawMessage
	UndoneAt       *time.Time
	CreatedAt      time.Time
}

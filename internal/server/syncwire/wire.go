// Package syncwire defines the JSON wire types and headers of the
// server-to-server sync protocol. Both the peer client and the peer-facing
// HTTP handlers share these shapes.
package syncwire

import "encoding/json"

// Signature headers. The signature authenticates; the connection id is
// advisory routing only, since it names the sender's local connection row,
// which has no meaning on the receiver.
const (
	HeaderSignature    = "x-sync-signature"
	HeaderConnectionID = "x-sync-connection-id"
)

// PullRequest asks a peer for outbox rows with id > SinceOutboxID.
type PullRequest struct {
	SinceOutboxID int64 `json:"since_outbox_id"`
	Limit         int   `json:"limit"`
}

// PullEvent is one replicated outbox row.
type PullEvent struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityUID  string          `json:"entity_uid"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
}

// PullResponse carries the batch plus the peer's current high-water mark.
type PullResponse struct {
	Events       []PullEvent `json:"events"`
	LastOutboxID int64       `json:"last_outbox_id"`
}

// PushRequest delivers events directly to a peer.
type PushRequest struct {
	Events []PushEvent `json:"events"`
}

type PushEvent struct {
	EntityType string          `json:"entity_type"`
	EntityUID  string          `json:"entity_uid"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
}

// RevokeRequest notifies a peer that the sender revoked the connection.
type RevokeRequest struct {
	RevokedBy string `json:"revoked_by"`
}

type RevokeResponse struct {
	OK bool `json:"ok"`
}

// RemotePerson is the peer's public view of one syncable person.
type RemotePerson struct {
	PersonUID         string `json:"person_uid"`
	Name              string `json:"name"`
	RelationshipLabel string `json:"relationship_label"`
}

type ListPeopleResponse struct {
	People []RemotePerson `json:"people"`
}

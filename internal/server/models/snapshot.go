package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion is bumped whenever the wire shape of a snapshot changes.
const SnapshotVersion = 1

// Snapshot is the versioned tagged union carried in outbox payloads. Exactly
// one of Person or Moment is set, matching EntityType. Payloads are full
// entity snapshots, not diffs, so replay is idempotent at the consumer.
type Snapshot struct {
	Version    int             `json:"version"`
	EntityType string          `json:"entity_type"`
	Person     *PersonSnapshot `json:"person,omitempty"`
	Moment     *MomentSnapshot `json:"moment,omitempty"`
}

type PersonSnapshot struct {
	PersonUID        string `json:"person_uid"`
	Name             string `json:"name"`
	RelationshipType string `json:"relationship_type"`
	Archived         bool   `json:"archived"`
}

type MomentSnapshot struct {
	MomentUID   string    `json:"moment_uid"`
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Recurring   bool      `json:"recurring"`
	PartnerUIDs []string  `json:"partner_uids"`
	Deleted     bool      `json:"deleted"`
}

// NewPersonSnapshot builds the outbox snapshot for a person.
func NewPersonSnapshot(p *Person) Snapshot {
	return Snapshot{
		Version:    SnapshotVersion,
		EntityType: EntityPerson,
		Person: &PersonSnapshot{
			PersonUID:        p.PersonUID,
			Name:             p.Name,
			RelationshipType: p.RelationshipType,
			Archived:         p.Archived,
		},
	}
}

// NewMomentSnapshot builds the outbox snapshot for a moment. partnerUIDs are
// the cross-instance person uids of the moment's partners, not local ids.
func NewMomentSnapshot(m *Moment, partnerUIDs []string) Snapshot {
	return Snapshot{
		Version:    SnapshotVersion,
		EntityType: EntityMoment,
		Moment: &MomentSnapshot{
			MomentUID:   m.MomentUID,
			Title:       m.Title,
			Date:        m.Date,
			Description: m.Description,
			Recurring:   m.Recurring,
			PartnerUIDs: partnerUIDs,
			Deleted:     m.DeletedAt != nil,
		},
	}
}

// Validate checks the tagged-union shape at the collaborator boundary.
func (s *Snapshot) Validate() error {
	if s.Version <= 0 || s.Version > SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	switch s.EntityType {
	case EntityPerson:
		if s.Person == nil || s.Moment != nil {
			return fmt.Errorf("person snapshot: wrong variant populated")
		}
		if s.Person.PersonUID == "" {
			return fmt.Errorf("person snapshot: missing person_uid")
		}
	case EntityMoment:
		if s.Moment == nil || s.Person != nil {
			return fmt.Errorf("moment snapshot: wrong variant populated")
		}
		if s.Moment.MomentUID == "" {
			return fmt.Errorf("moment snapshot: missing moment_uid")
		}
	default:
		return fmt.Errorf("unknown entity type %q", s.EntityType)
	}
	return nil
}

// EntityUID returns the cross-instance id of whichever variant is set.
func (s *Snapshot) EntityUID() string {
	switch s.EntityType {
	case EntityPerson:
		if s.Person != nil {
			return s.Person.PersonUID
		}
	case EntityMoment:
		if s.Moment != nil {
			return s.Moment.MomentUID
		}
	}
	return ""
}

// DecodeSnapshot parses and validates an outbox payload.
func DecodeSnapshot(payload json.RawMessage) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// MergeSnapshot is the undo payload written to merge_logs before any
// destructive merge step runs.
type MergeSnapshot struct {
	Version int                `json:"version"`
	Person  PersonRecord       `json:"person"`
	Links   []LinkRecord       `json:"links"`
	Moments []MomentPartnerSet `json:"moments"`
}

// PersonRecord is the full pre-merge row of the dropped person.
type PersonRecord struct {
	ID               string `json:"id"`
	PersonUID        string `json:"person_uid"`
	Name             string `json:"name"`
	RelationshipType string `json:"relationship_type"`
	Archived         bool   `json:"archived"`
}

// LinkRecord snapshots one sync link of the dropped person.
type LinkRecord struct {
	ID              string `json:"id"`
	ConnectionID    string `json:"connection_id"`
	LocalPersonID   string `json:"local_person_id"`
	RemotePersonUID string `json:"remote_person_uid"`
	LinkStatus      string `json:"link_status"`
	IsEnabled       bool   `json:"is_enabled"`
}

// MomentPartnerSet records a moment's exact pre-merge partner_ids array so
// undo can restore it verbatim.
type MomentPartnerSet struct {
	MomentID   string   `json:"moment_id"`
	PartnerIDs []string `json:"partner_ids"`
}

// DecodeMergeSnapshot parses a merge_logs payload.
func DecodeMergeSnapshot(payload json.RawMessage) (*MergeSnapshot, error) {
	var s MergeSnapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decode merge snapshot: %w", err)
	}
	if s.Person.ID == "" {
		return nil, fmt.Errorf("merge snapshot: missing person id")
	}
	return &s, nil
}

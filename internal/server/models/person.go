package models

import "time"

// Person is a tracked individual in a user's relationship graph. PersonUID is
// the stable cross-instance identifier used by the sync protocol; ID is local
// to this deployment. A merged person is never deleted: it is archived and
// points at the surviving row via MergedIntoPersonID (tombstone).
type Person struct {
	ID                 string
	UserID             string
	PersonUID          string
	Name               string
	RelationshipType   string
	Archived           bool
	MergedIntoPersonID *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Tombstoned reports whether this person has been merged away.
func (p *Person) Tombstoned() bool {
	return p.MergedIntoPersonID != nil
}

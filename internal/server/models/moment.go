package models

import "time"

// Moment is a dated memory or life event associated with one or more people
// via PartnerIDs (local person ids). MomentUID is the stable cross-instance
// identifier. Deletion is soft, via DeletedAt.
type Moment struct {
	ID          string
	UserID      string
	MomentUID   string
	Title       string
	Date        time.Time
	Description string
	Recurring   bool
	PartnerIDs  []string
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPartner reports whether personID appears in PartnerIDs.
func (m *Moment) HasPartner(personID string) bool {
	for _, id := range m.PartnerIDs {
		if id == personID {
			return true
		}
	}
	return false
}

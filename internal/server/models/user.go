// Package models defines the server-side record types persisted in Postgres.
// Every user-scoped table carries user_id; repositories must filter by it on
// every query.
package models

import "time"

// Plan names. Only the premium plan includes AI features.
const (
	PlanFree    = "free"
	PlanPremium = "premium"
)

type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	Plan         string
	CreatedAt    time.Time
}

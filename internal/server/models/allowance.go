package models

import (
	"encoding/json"
	"time"
)

// Allowance period sources.
const (
	PeriodSourceFree    = "free"
	PeriodSourcePremium = "premium"
	PeriodSourceGift    = "gift"
)

// FeatureAdminAdjustment is the usage-event feature recorded when an admin
// overwrites a user's balance.
const FeatureAdminAdjustment = "admin_balance_adjustment"

// AllowancePeriod is one row per user per billing cycle. TokensGranted
// includes RolloverTokens carried from the prior period (capped at the plan's
// base allotment). TokensUsed <= TokensGranted in normal operation; an admin
// override may violate that transiently, and consumers must tolerate a
// negative remainder.
type AllowancePeriod struct {
	ID             string
	UserID         string
	TokensGranted  int64
	TokensUsed     int64
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Source         string
	RolloverTokens int64
	BaseTokens     int64
	CreatedAt      time.Time
}

// RemainingTokens can go negative after an admin override.
func (p *AllowancePeriod) RemainingTokens() int64 {
	return p.TokensGranted - p.TokensUsed
}

// RemainingCredits converts the token remainder into user-facing credits.
func (p *AllowancePeriod) RemainingCredits(tokensPerCredit int64) int64 {
	if tokensPerCredit <= 0 {
		return 0
	}
	return p.RemainingTokens() / tokensPerCredit
}

// Covers reports whether t falls inside this period.
func (p *AllowancePeriod) Covers(t time.Time) bool {
	return !t.Before(p.PeriodStart) && t.Before(p.PeriodEnd)
}

// UsageEvent is an immutable append-only log entry. The unique
// (user_id, idempotency_key) pair prevents double-charging on retry.
type UsageEvent struct {
	ID               string
	UserID           string
	IdempotencyKey   string
	Feature          string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	CreditsCharged   int64
	Metadata         json.RawMessage
	CreatedAt        time.Time
}

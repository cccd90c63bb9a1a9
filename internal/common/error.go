// Package common defines shared constants and sentinel errors used across
// the Cherishly server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound  = errors.New("not found")
	ErrorDuplicate = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Allowance gate errors.
	ErrPlanNotEligible     = errors.New("plan does not include AI features")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Upstream collaborator errors. Both the AI provider and a sync peer can
	// reject a request; local durable state is never corrupted by these.
	ErrUpstreamRateLimited    = errors.New("upstream rate limited")
	ErrUpstreamQuotaExhausted = errors.New("upstream credits exhausted")
	ErrPeerRejected           = errors.New("peer rejected request")
	ErrNoActiveConnection     = errors.New("no active sync connection")
)

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/logging"
	"github.com/cherishly/cherishly/internal/server/aiclient"
)

const suggestionSystemPrompt = "You help a user nurture a personal relationship. " +
	"Given a person and their recent moments, suggest one thoughtful, concrete " +
	"gesture or conversation starter. Be brief and specific."

// FeatureSuggestion is the usage-event feature for AI gesture suggestions.
const FeatureSuggestion = "suggestion"

// Suggestion is one AI-generated proposal plus the post-call balance.
type Suggestion struct {
	Text             string `json:"text"`
	RemainingCredits int64  `json:"remaining_credits"`
	WarnLowBalance   bool   `json:"warn_low_balance"`
}

// completer abstracts the AI collaborator for tests.
type completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*aiclient.Completion, error)
}

// SuggestionService runs the gate-call-record pipeline: the allowance gate is
// consulted first, the upstream call is made only when it allows, and actual
// token usage is recorded afterwards keyed by the caller's idempotency key.
type SuggestionService struct {
	allowance *AllowanceService
	people    *PeopleService
	moments   *MomentService
	ai        completer
	logger    logging.Logger
}

func NewSuggestionService(allowance *AllowanceService, people *PeopleService, moments *MomentService, ai completer, logger logging.Logger) *SuggestionService {
	return &SuggestionService{
		allowance: allowance,
		people:    people,
		moments:   moments,
		ai:        ai,
		logger:    logger,
	}
}

// SuggestGesture produces one suggestion for a person. idempotencyKey is
// chosen by the client per logical request; retrying with the same key never
// double-charges.
func (s *SuggestionService) SuggestGesture(ctx context.Context, userID, personID, idempotencyKey string) (*Suggestion, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: missing idempotency key", common.ErrorValidation)
	}

	check, err := s.allowance.CheckCredits(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		if check.Reason == "insufficient credits" {
			return nil, common.ErrInsufficientCredits
		}
		return nil, common.ErrPlanNotEligible
	}

	person, err := s.people.Get(ctx, userID, personID)
	if err != nil {
		return nil, err
	}

	recent, err := s.moments.ListByPartner(ctx, userID, personID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Person: %s (%s)\n", person.Name, person.RelationshipType)
	for i, m := range recent {
		if i == 10 {
			break
		}
		fmt.Fprintf(&b, "Moment: %s on %s. %s\n", m.Title, m.Date.Format("2006-01-02"), m.Description)
	}

	completion, err := s.ai.Complete(ctx, suggestionSystemPrompt, b.String())
	if err != nil {
		// Upstream failures cost nothing; the sentinel reaches the client
		// distinguishably from a local insufficient-credits refusal.
		return nil, err
	}

	metadata, _ := json.Marshal(map[string]string{"person_id": personID})
	if err := s.allowance.RecordUsage(ctx, userID, idempotencyKey, completion.PromptTokens, completion.CompletionTokens, FeatureSuggestion, metadata); err != nil {
		// The upstream call succeeded; losing the charge is an accounting
		// bug worth surfacing, not a reason to hide the suggestion.
		s.logger.Error(ctx, "recording usage failed", "user_id", userID, "error", err)
	}

	after, err := s.allowance.CheckCredits(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Suggestion{
		Text:             completion.Text,
		RemainingCredits: after.RemainingCredits,
		WarnLowBalance:   after.WarnLowBalance,
	}, nil
}

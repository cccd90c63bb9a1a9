// Package httpapi exposes the user-facing REST API and the peer-facing sync
// endpoints over chi.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cherishly/cherishly/internal/common"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps sentinel errors onto HTTP statuses. Upstream AI failures
// keep their own statuses so a client can tell "out of credits here" from
// "provider throttled us".
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, common.ErrorValidation):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrorDuplicate):
		status = http.StatusConflict
	case errors.Is(err, common.ErrPlanNotEligible):
		status = http.StatusForbidden
	case errors.Is(err, common.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
	case errors.Is(err, common.ErrUpstreamRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, common.ErrUpstreamQuotaExhausted),
		errors.Is(err, common.ErrPeerRejected):
		status = http.StatusBadGateway
	case errors.Is(err, common.ErrNoActiveConnection):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.ErrorValidation
	}
	return nil
}

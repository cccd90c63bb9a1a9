package httpapi

import (
	"net/http"
)

func (h *Handler) handleGetAllowance(w http.ResponseWriter, r *http.Request) {
	check, err := h.allowance.CheckCredits(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

type setAllowanceRequest struct {
	// UserID defaults to the caller; an operator token may name another
	// account.
	UserID        string `json:"user_id,omitempty"`
	TokensGranted int64  `json:"tokens_granted"`
	TokensUsed    int64  `json:"tokens_used"`
}

func (h *Handler) handleSetAllowance(w http.ResponseWriter, r *http.Request) {
	var req setAllowanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" {
		req.UserID = userID(r)
	}

	if err := h.allowance.SetAllowance(r.Context(), req.UserID, req.TokensGranted, req.TokensUsed); err != nil {
		writeError(w, err)
		return
	}

	check, err := h.allowance.CheckCredits(r.Context(), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

type suggestRequest struct {
	PersonID       string `json:"person_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	suggestion, err := h.suggestions.SuggestGesture(r.Context(), userID(r), req.PersonID, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

package httpapi

import (
	"net/http"

	"github.com/cherishly/cherishly/internal/server/services"
	"github.com/cherishly/cherishly/internal/server/syncwire"
)

type connectRequest struct {
	RemoteBaseURL string `json:"remote_base_url"`
	SharedSecret  string `json:"shared_secret"`
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.sync.Connect(r.Context(), userID(r), req.RemoteBaseURL, req.SharedSecret)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"connection_id":   conn.ID,
		"remote_base_url": conn.RemoteBaseURL,
		"status":          conn.Status,
	})
}

func (h *Handler) handleSuggestMatches(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.match.SuggestMatches(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (h *Handler) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.match.ListCandidates(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (h *Handler) handleApplyMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actions []services.MappingAction `json:"actions"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	// Partial failure is a normal outcome: the summary carries per-action
	// results and the batch itself returns 200.
	summary, err := h.match.ApplyMapping(r.Context(), userID(r), req.Actions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleBackfill(w http.ResponseWriter, r *http.Request) {
	enqueued, err := h.sync.Backfill(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"enqueued": enqueued})
}

type pushPendingRequest struct {
	SinceOutboxID int64 `json:"since_outbox_id"`
}

func (h *Handler) handlePushPending(w http.ResponseWriter, r *http.Request) {
	var req pushPendingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pushed, err := h.sync.PushPending(r.Context(), userID(r), req.SinceOutboxID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pushed": pushed})
}

func (h *Handler) handleRunSync(w http.ResponseWriter, r *http.Request) {
	applied, err := h.sync.RunPull(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"applied": applied})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.Revoke(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handlePeerPull(w http.ResponseWriter, r *http.Request) {
	var req syncwire.PullRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.sync.HandlePull(r.Context(), peerConnection(r), req.SinceOutboxID, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePeerPush(w http.ResponseWriter, r *http.Request) {
	var req syncwire.PushRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	applied, err := h.sync.HandlePush(r.Context(), peerConnection(r), req.Events)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"applied": applied})
}

func (h *Handler) handlePeerRevoke(w http.ResponseWriter, r *http.Request) {
	var req syncwire.RevokeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.sync.HandleRevoke(r.Context(), peerConnection(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncwire.RevokeResponse{OK: true})
}

func (h *Handler) handlePeerListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := h.sync.ListPeopleForPeer(r.Context(), peerConnection(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncwire.ListPeopleResponse{People: people})
}

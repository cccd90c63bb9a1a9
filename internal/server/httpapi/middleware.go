package httpapi

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/server/auth"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/cherishly/cherishly/internal/server/syncwire"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	peerConnKey contextKey = "peer_connection"
)

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func peerConnection(r *http.Request) *models.SyncConnection {
	conn, _ := r.Context().Value(peerConnKey).(*models.SyncConnection)
	return conn
}

// authenticate resolves the bearer token to a user id. Anything short of a
// valid unexpired token is a 401.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, common.ErrorUnauthorized)
			return
		}

		id, err := auth.GetUserIDFromToken(token, h.jwtSecret)
		if err != nil {
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

// rateLimit applies the fixed-window limiter keyed by user id, or client IP
// before authentication.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := userID(r)
		if key == "" {
			key, _, _ = net.SplitHostPort(r.RemoteAddr)
		}

		result, err := h.limiter.Allow(r.Context(), key)
		if err != nil {
			// A broken limiter backend must not take the API down.
			h.logger.Error(r.Context(), "rate limiter failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !result.Allowed {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// peerAuth authenticates server-to-server calls by HMAC over the raw body.
// The matched connection rides the context; the body is rewound for the
// handler.
func (h *Handler) peerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, common.ErrorValidation)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		conn, err := h.sync.VerifyPeerRequest(r.Context(), body, r.Header.Get(syncwire.HeaderSignature))
		if err != nil {
			writeError(w, common.ErrorUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), peerConnKey, conn)))
	})
}

// Package peerclient is the outbound half of the sync protocol: it signs
// request bodies with the connection's key and POSTs them to the remote
// instance. All calls carry a bounded timeout; local durable state never
// depends on a peer answering.
package peerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cherishly/cherishly/internal/common"
	"github.com/cherishly/cherishly/internal/cryptox"
	"github.com/cherishly/cherishly/internal/server/models"
	"github.com/cherishly/cherishly/internal/server/syncwire"
)

type Client struct {
	httpClient *http.Client
}

func New(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

func (c *Client) post(ctx context.Context, conn *models.SyncConnection, path string, body []byte) (*http.Response, error) {
	key, err := cryptox.DecodeSigningKey(conn.SigningKeyHash)
	if err != nil {
		return nil, fmt.Errorf("connection %s: bad signing key: %w", conn.ID, err)
	}

	url := strings.TrimRight(conn.RemoteBaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(syncwire.HeaderSignature, cryptox.Sign(key, body))
	req.Header.Set(syncwire.HeaderConnectionID, conn.ID)

	return c.httpClient.Do(req)
}

// Pull fetches a batch of outbox events from the peer.
func (c *Client) Pull(ctx context.Context, conn *models.SyncConnection, sinceOutboxID int64, limit int) (*syncwire.PullResponse, error) {
	body, err := json.Marshal(syncwire.PullRequest{SinceOutboxID: sinceOutboxID, Limit: limit})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, conn, "/sync-pull", body)
	if err != nil {
		return nil, fmt.Errorf("peer pull: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: pull status %d", common.ErrPeerRejected, resp.StatusCode)
	}

	var parsed syncwire.PullResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("peer pull: decode: %w", err)
	}
	return &parsed, nil
}

// Push delivers events to the peer. A non-2xx answer is an explicit error;
// it is never swallowed, so the initiating user action can report it.
func (c *Client) Push(ctx context.Context, conn *models.SyncConnection, events []syncwire.PushEvent) error {
	body, err := json.Marshal(syncwire.PushRequest{Events: events})
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, conn, "/sync-push", body)
	if err != nil {
		return fmt.Errorf("peer push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: push status %d", common.ErrPeerRejected, resp.StatusCode)
	}
	return nil
}

// Revoke notifies the peer that the connection was revoked locally.
func (c *Client) Revoke(ctx context.Context, conn *models.SyncConnection, revokedBy string) error {
	body, err := json.Marshal(syncwire.RevokeRequest{RevokedBy: revokedBy})
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, conn, "/sync-revoke-connection", body)
	if err != nil {
		return fmt.Errorf("peer revoke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: revoke status %d", common.ErrPeerRejected, resp.StatusCode)
	}
	return nil
}

// ListPeople fetches the peer's syncable people.
func (c *Client) ListPeople(ctx context.Context, conn *models.SyncConnection) ([]syncwire.RemotePerson, error) {
	resp, err := c.post(ctx, conn, "/sync-list-people", []byte(`{}`))
	if err != nil {
		return nil, fmt.Errorf("peer list people: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list-people status %d", common.ErrPeerRejected, resp.StatusCode)
	}

	var parsed syncwire.ListPeopleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("peer list people: decode: %w", err)
	}
	return parsed.People, nil
}

// Package manager is the C8 "manager store contract": the worker-side
// HTTP client for the small subset of manager endpoints the worker
// depends on (spec §6) — registration, fetching last-known job status,
// pushing status updates and schedule snapshots, and deregistration —
// plus (in store.go/server.go) a reference manager implementing those
// same endpoints against a bbolt-backed store, for local/dev testing
// of a worker against a real HTTP manager. The manager is otherwise an
// external collaborator, specified only by this contract (spec §1).
package manager

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cuemby/rtsync/internal/wire"
)

// Client talks to one or more manager base URLs (config's
// manager.api_list, falling back to manager.api_base), authorizing
// every call with an opaque bearer token (spec §1 Non-goals: no
// auth beyond this).
type Client struct {
	http  *http.Client
	bases []string
	token string
}

// New builds a Client. caCertFile, if non-empty, is loaded into the
// client's trusted root pool in addition to the system pool, mirroring
// the TLS trust model the teacher codebase applies when dialing a peer
// over HTTPS (pkg/client/client.go's certPool construction), minus the
// mTLS client-certificate half that this worker's manager relationship
// does not need (auth here is a bearer token, not a client cert).
func New(bases []string, token, caCertFile string) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if caCertFile != "" {
		pool, err := systemPoolPlus(caCertFile)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &Client{
		http:  &http.Client{Transport: transport, Timeout: 30 * time.Second},
		bases: bases,
		token: token,
	}, nil
}

func systemPoolPlus(caCertFile string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	pem, err := os.ReadFile(caCertFile)
	if err != nil {
		return nil, fmt.Errorf("manager: read ca cert %s: %w", caCertFile, err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("manager: no certificates found in %s", caCertFile)
	}
	return pool, nil
}

func (c *Client) do(ctx context.Context, method, base, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("manager: marshal body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, rdr)
	if err != nil {
		return fmt.Errorf("manager: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("manager: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		buf, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("manager: %s %s: status %d: %s", method, path, resp.StatusCode, string(buf))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("manager: decode response from %s %s: %w", method, path, err)
	}
	return nil
}

// RegisterWorker POSTs /workers to every configured manager base and
// returns the first successful response (spec §4.8 startup step 2).
// The caller is responsible for the ×10, 1s-delay retry policy.
func (c *Client) RegisterWorker(ctx context.Context, ws wire.WorkerStatus) (wire.WorkerStatus, error) {
	var last error
	var first *wire.WorkerStatus
	for _, base := range c.bases {
		var out wire.WorkerStatus
		if err := c.do(ctx, http.MethodPost, base, "/workers", ws, &out); err != nil {
			last = err
			continue
		}
		if first == nil {
			first = &out
		}
	}
	if first != nil {
		return *first, nil
	}
	return wire.WorkerStatus{}, last
}

// FetchJobs GETs /workers/<id>/jobs from the first manager base that
// answers (spec §4.8 startup step 4).
func (c *Client) FetchJobs(ctx context.Context, workerID string) ([]wire.MirrorStatus, error) {
	var last error
	for _, base := range c.bases {
		var out []wire.MirrorStatus
		if err := c.do(ctx, http.MethodGet, base, fmt.Sprintf("/workers/%s/jobs", workerID), nil, &out); err != nil {
			last = err
			continue
		}
		return out, nil
	}
	return nil, last
}

// ReportStatus POSTs a job status update to every manager base.
func (c *Client) ReportStatus(ctx context.Context, workerID string, status wire.MirrorStatus) error {
	return c.broadcast(ctx, http.MethodPost, fmt.Sprintf("/workers/%s/jobs/%s", workerID, status.Name), status)
}

// PushSchedules POSTs the full schedule snapshot to every manager base
// (spec §4.8 startup step 5, and after every status update).
func (c *Client) PushSchedules(ctx context.Context, workerID string, snap wire.MirrorSchedules) error {
	return c.broadcast(ctx, http.MethodPost, fmt.Sprintf("/workers/%s/schedules", workerID), snap)
}

// Deregister DELETEs the worker's own entry.
func (c *Client) Deregister(ctx context.Context, workerID string) error {
	return c.broadcast(ctx, http.MethodDelete, fmt.Sprintf("/workers/%s", workerID), nil)
}

// broadcast sends req to every manager base, collecting (not
// short-circuiting on) failures: a transport error to one manager must
// not block reporting to the others, and never affects job progression
// (spec §7: "Transport error to manager. Logged; does not affect job
// progression").
func (c *Client) broadcast(ctx context.Context, method, path string, body any) error {
	var firstErr error
	for _, base := range c.bases {
		if err := c.do(ctx, method, base, path, body, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

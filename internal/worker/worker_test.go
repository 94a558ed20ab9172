package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rtsync/internal/config"
	"github.com/cuemby/rtsync/internal/wire"
)

// stubManager is a minimal in-memory manager HTTP server implementing
// just the endpoints the worker calls, so the orchestrator can be
// exercised end to end without a real manager.
type stubManager struct {
	mu       sync.Mutex
	statuses []wire.MirrorStatus
}

func newStubManager() *stubManager { return &stubManager{} }

func (s *stubManager) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/workers", func(w http.ResponseWriter, r *http.Request) {
		var ws wire.WorkerStatus
		_ = json.NewDecoder(r.Body).Decode(&ws)
		_ = json.NewEncoder(w).Encode(ws)
	})
	mux.HandleFunc("/workers/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/jobs"):
			_ = json.NewEncoder(w).Encode([]wire.MirrorStatus{})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/schedules"):
			_ = json.NewEncoder(w).Encode(map[string]string{})
		case r.Method == http.MethodPost:
			var ms wire.MirrorStatus
			_ = json.NewDecoder(r.Body).Decode(&ms)
			s.mu.Lock()
			s.statuses = append(s.statuses, ms)
			s.mu.Unlock()
			_ = json.NewEncoder(w).Encode(ms)
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{})
		}
	})
	return httptest.NewServer(mux)
}

func (s *stubManager) count(status wire.SyncStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.statuses {
		if m.Status == status {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T, managerURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	interval := 60
	retry := 1
	timeout := 0
	return &config.Config{
		Global: config.GlobalConfig{Concurrent: 2},
		Manager: config.ManagerConfig{
			APIList: []string{managerURL},
			Token:   "test-token",
		},
		Server: config.ServerConfig{ListenAddr: "127.0.0.1", ListenPort: 0},
		Mirrors: []config.MirrorConfig{
			{
				Name:      "echo",
				Provider:  config.ProviderCommand,
				Upstream:  "local://echo",
				Command:   "true",
				Interval:  &interval,
				Retry:     &retry,
				Timeout:   &timeout,
				MirrorDir: filepath.Join(dir, "echo"),
				LogDir:    filepath.Join(dir, "log"),
			},
		},
	}
}

func TestWorkerStartRegistersAndDispatchesStartCommand(t *testing.T) {
	stub := newStubManager()
	srv := stub.server()
	defer srv.Close()

	w, err := New(testConfig(t, srv.URL))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	defer w.Halt(ctx)

	body, _ := json.Marshal(wire.WorkerCmd{Cmd: wire.CmdStart, MirrorID: "echo"})
	resp, err := http.Post("http://"+w.ControlAddr()+"/", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return stub.count(wire.StatusSuccess) >= 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWorkerControlHandlerRejectsUnknownMirror(t *testing.T) {
	stub := newStubManager()
	srv := stub.server()
	defer srv.Close()

	w, err := New(testConfig(t, srv.URL))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	defer w.Halt(ctx)

	body, _ := json.Marshal(wire.WorkerCmd{Cmd: wire.CmdStart, MirrorID: "nope"})
	resp, err := http.Post("http://"+w.ControlAddr()+"/", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWorkerReloadAddsAndRemovesMirrors(t *testing.T) {
	stub := newStubManager()
	srv := stub.server()
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	w, err := New(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	defer w.Halt(ctx)

	newCfg := testConfig(t, srv.URL)
	interval := 60
	retry := 1
	newCfg.Mirrors = append(newCfg.Mirrors, config.MirrorConfig{
		Name:      "second",
		Provider:  config.ProviderCommand,
		Upstream:  "local://second",
		Command:   "true",
		Interval:  &interval,
		Retry:     &retry,
		MirrorDir: t.TempDir(),
		LogDir:    t.TempDir(),
	})

	require.NoError(t, w.Reload(ctx, newCfg))

	w.mu.RLock()
	_, hasEcho := w.jobs["echo"]
	_, hasSecond := w.jobs["second"]
	w.mu.RUnlock()
	assert.True(t, hasEcho)
	assert.True(t, hasSecond)

	prunedCfg := testConfig(t, srv.URL)
	prunedCfg.Mirrors = nil
	require.NoError(t, w.Reload(ctx, prunedCfg))

	w.mu.RLock()
	_, stillThere := w.jobs["echo"]
	w.mu.RUnlock()
	assert.False(t, stillThere)
}

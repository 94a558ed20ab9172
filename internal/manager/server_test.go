package manager

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rtsync/internal/wire"
)

func newTestServer(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	srv := NewServer(store, "secret")
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	return hs, store
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestServerRejectsMissingToken(t *testing.T) {
	hs, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, hs.URL+"/workers", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServerRegistersAndListsWorker(t *testing.T) {
	hs, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, hs.URL+"/workers", "secret", wire.WorkerStatus{ID: "w1", URL: "http://localhost:1/"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, hs.URL+"/workers", "secret", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []wire.WorkerStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "w1", list[0].ID)
	assert.False(t, list[0].LastRegister.IsZero())
}

func TestServerJobStatusInvariants(t *testing.T) {
	hs, _ := newTestServer(t)

	post := func(status wire.SyncStatus) wire.MirrorStatus {
		resp := doJSON(t, http.MethodPost, hs.URL+"/workers/w1/jobs/alpha", "secret", wire.MirrorStatus{Name: "alpha", Status: status})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var ms wire.MirrorStatus
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&ms))
		return ms
	}

	presyncing := post(wire.StatusPreSyncing)
	assert.False(t, presyncing.LastStarted.IsZero())

	success := post(wire.StatusSuccess)
	assert.False(t, success.LastUpdate.IsZero())
	assert.False(t, success.LastEnded.IsZero())
	assert.Equal(t, presyncing.LastStarted, success.LastStarted)
}

func TestServerDeleteDisabled(t *testing.T) {
	hs, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, hs.URL+"/workers/w1/jobs/alpha", "secret", wire.MirrorStatus{Name: "alpha", Status: wire.StatusDisabled})
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, hs.URL+"/jobs/disabled", "secret", nil)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, hs.URL+"/jobs", "secret", nil)
	defer resp.Body.Close()
	var list []wire.WebMirrorStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 0)
}

func TestServerCmdUnknownWorker(t *testing.T) {
	hs, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, hs.URL+"/cmd", "secret", wire.ClientCmd{Cmd: wire.CmdPing, WorkerID: "ghost", MirrorID: "alpha"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

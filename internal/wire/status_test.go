package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorStatusSchedulesAsNextSchedule(t *testing.T) {
	s := MirrorStatus{Name: "job-ls", Status: StatusSuccess, Scheduled: time.Unix(1700000000, 0).UTC()}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"next_schedule"`)
	assert.NotContains(t, string(b), `"scheduled"`)
}

func TestSyncStatusWireNames(t *testing.T) {
	cases := map[SyncStatus]string{
		StatusNone:       "none",
		StatusFailed:     "failed",
		StatusSuccess:    "success",
		StatusSyncing:    "syncing",
		StatusPreSyncing: "pre-syncing",
		StatusPaused:     "paused",
		StatusDisabled:   "disabled",
	}
	for status, want := range cases {
		assert.Equal(t, want, string(status))
	}
}

func TestNewWebMirrorStatus(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := MirrorStatus{Name: "a", LastUpdate: ts}
	web := NewWebMirrorStatus(s)
	assert.Equal(t, ts.Unix(), web.LastUpdateTS)
	assert.Equal(t, "2026-01-02 03:04:05 +0000", web.LastUpdateH)
}

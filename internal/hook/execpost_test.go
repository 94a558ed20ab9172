package hook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecPostHookRunsOnMatchingPhase(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	h := NewExecPostHook("echo -n $RTSYNC_JOB_EXIT_STATUS > "+marker, false)

	require.NoError(t, h.PostSuccess("job", dir, "rsync://x/", dir, "/dev/null"))
	b, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "success", string(b))
}

func TestExecPostHookOnFailSkipsSuccess(t *testing.T) {
	h := NewExecPostHook("exit 0", true)
	assert.NoError(t, h.PostSuccess("job", ".", "rsync://x/", ".", "/dev/null"))
}

func TestExecPostHookEmptyCommandIsNoop(t *testing.T) {
	h := NewExecPostHook("", false)
	assert.NoError(t, h.PostSuccess("job", ".", "rsync://x/", ".", "/dev/null"))
}

package hook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	ctxstack "github.com/cuemby/rtsync/internal/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLimiterKeepsOnlyNineNewest(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 12; i++ {
		name := filepath.Join(dir, "job_"+time.Now().Add(time.Duration(i)*time.Second).Format("20060102150405")+".log")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	}

	h := NewLogLimiter()
	ctx := ctxstack.New()
	require.NoError(t, h.PreExec("job", dir, filepath.Join(dir, "job_new.log"), dir, ctx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var matched int
	for _, e := range entries {
		if e.Type()&os.ModeSymlink != 0 {
			continue
		}
		if filepath.Base(e.Name())[:3] == "job" {
			matched++
		}
	}
	assert.LessOrEqual(t, matched, 10) // 9 kept; PreExec itself creates no log file
}

func TestLogLimiterCreatesLatestSymlink(t *testing.T) {
	dir := t.TempDir()
	h := NewLogLimiter()
	ctx := ctxstack.New()
	require.NoError(t, h.PreExec("job", dir, filepath.Join(dir, "x.log"), dir, ctx))

	link := filepath.Join(dir, "latest")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Contains(t, target, "job_")
}

func TestLogLimiterDevNullSkipsRotation(t *testing.T) {
	dir := t.TempDir()
	h := NewLogLimiter()
	ctx := ctxstack.New()
	require.NoError(t, h.PreExec("job", dir, "/dev/null", dir, ctx))

	_, err := os.Lstat(filepath.Join(dir, "latest"))
	assert.True(t, os.IsNotExist(err))
}

func TestLogLimiterPostExecExitsFrame(t *testing.T) {
	h := NewLogLimiter()
	ctx := ctxstack.New()
	ctx.Enter()
	require.NoError(t, h.PostExec(ctx, "job"))
	assert.Equal(t, 1, ctx.Depth())
}

// TestLogLimiterPostFailRotatesAfterPostExecPopped reproduces the
// pipeline's real call order: pre_exec rotates the log, post_exec pops
// the frame that held it, and only then does post_fail run. PostFail
// must still find the rotated path through h.currentLogFile rather than
// the now-reverted context entry.
func TestLogLimiterPostFailRotatesAfterPostExecPopped(t *testing.T) {
	dir := t.TempDir()
	h := NewLogLimiter()
	ctx := ctxstack.New()

	require.NoError(t, h.PreExec("job", dir, filepath.Join(dir, "job_old.log"), dir, ctx))
	rotated := h.currentLogFile
	require.NoError(t, os.WriteFile(rotated, []byte("log output"), 0o644))

	require.NoError(t, h.PostExec(ctx, "job"))

	require.NoError(t, h.PostFail("job", dir, "upstream", dir, "", ctx))

	_, err := os.Stat(rotated + ".fail")
	assert.NoError(t, err, "rotated log should have been renamed to its .fail path")

	link := filepath.Join(dir, "latest")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Contains(t, target, ".fail")
}

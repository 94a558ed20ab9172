package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSizeFromRsyncLogLastMatchWins(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "rsync.log")
	content := "some header\nTotal file size: 100 bytes\nmore text\nTotal file size: 204.8K bytes\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))

	size, err := ExtractSizeFromRsyncLog(logPath)
	require.NoError(t, err)
	assert.Equal(t, "204.8K", size)
}

func TestExtractSizeFromRsyncLogDevNullNoError(t *testing.T) {
	size, err := ExtractSizeFromRsyncLog("/dev/null")
	assert.NoError(t, err)
	assert.Equal(t, "", size)
}

func TestExtractSizeFromRsyncLogMissingFileErrors(t *testing.T) {
	_, err := ExtractSizeFromRsyncLog("/no/such/file-xyz")
	assert.Error(t, err)
}

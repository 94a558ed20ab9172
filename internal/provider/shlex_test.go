package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShellWordsBasic(t *testing.T) {
	words, err := splitShellWords("ls -la /tmp")
	require.NoError(t, err)
	assert.Equal(t, []string{"ls", "-la", "/tmp"}, words)
}

func TestSplitShellWordsQuoted(t *testing.T) {
	words, err := splitShellWords(`bash -c 'echo hello world'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"bash", "-c", "echo hello world"}, words)
}

func TestSplitShellWordsUnterminatedQuoteErrors(t *testing.T) {
	_, err := splitShellWords(`bash -c 'unterminated`)
	assert.Error(t, err)
}

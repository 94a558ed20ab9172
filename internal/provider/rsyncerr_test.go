package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateRsyncExitCodeKnown(t *testing.T) {
	assert.Equal(t, "rsync error: Success", TranslateRsyncExitCode(0))
	assert.Equal(t, "rsync error: Partial transfer due to error", TranslateRsyncExitCode(23))
	assert.Equal(t, "rsync error: Timeout waiting for daemon connection", TranslateRsyncExitCode(35))
}

func TestTranslateRsyncExitCodeUnknown(t *testing.T) {
	assert.Equal(t, "error status: 99", TranslateRsyncExitCode(99))
}

func TestTranslateGenericExitCode(t *testing.T) {
	assert.Equal(t, "error status: 7", TranslateGenericExitCode(7))
}

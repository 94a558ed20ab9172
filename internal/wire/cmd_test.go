package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCmdVerbValid(t *testing.T) {
	assert.True(t, CmdStart.Valid())
	assert.True(t, CmdReload.Valid())
	assert.False(t, CmdVerb("bogus").Valid())
}

func TestWorkerCmdString(t *testing.T) {
	c := WorkerCmd{Cmd: CmdStart, MirrorID: "debian"}
	assert.Equal(t, "start (debian)", c.String())

	c.Args = []string{"force"}
	assert.Equal(t, `start (debian, [force])`, c.String())
}

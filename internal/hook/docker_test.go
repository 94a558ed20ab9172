package hook

import (
	"testing"

	ctxstack "github.com/cuemby/rtsync/internal/context"
	"github.com/cuemby/rtsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDockerHookMergesGlobalAndMirrorVolumes(t *testing.T) {
	g := config.DockerConfig{Volumes: []string{"/g:/g"}, Options: []string{"--net=host"}}
	m := config.MirrorConfig{DockerVolumes: []string{"/m:/m"}, ExcludeFile: "/x.txt"}
	h := NewDockerHook(g, m)

	assert.Contains(t, h.Volumes, "/g:/g")
	assert.Contains(t, h.Volumes, "/m:/m")
	assert.Contains(t, h.Volumes, "/x.txt:/x.txt:ro")
	assert.Contains(t, h.Options, "--net=host")
}

func TestDockerHookContainerName(t *testing.T) {
	h := NewDockerHook(config.DockerConfig{}, config.MirrorConfig{})
	assert.Equal(t, "rtsync-job-debian", h.ContainerName("debian"))
}

func TestDockerHookPreExecPushesConfiguredVolumes(t *testing.T) {
	h := NewDockerHook(config.DockerConfig{}, config.MirrorConfig{DockerVolumes: []string{"/extra:/extra"}})
	ctx := ctxstack.New()
	require.NoError(t, h.PreExec("debian", "/log", "/log/f.log", "/work", ctx))

	vols, ok := ctx.GetStringSlice("volumes")
	require.True(t, ok)
	assert.Contains(t, vols, "/log:/log")
	assert.Contains(t, vols, "/log/f.log:/log/f.log")
	assert.Contains(t, vols, "/work:/work")
	assert.Contains(t, vols, "/extra:/extra")
}

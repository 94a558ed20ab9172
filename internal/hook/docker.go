package hook

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	ctxstack "github.com/cuemby/rtsync/internal/context"
	"github.com/cuemby/rtsync/internal/config"
	"github.com/cuemby/rtsync/internal/log"
)

const volumesKey = "volumes"

// DockerHook wraps a provider's argv in a docker invocation. The
// provider package's BaseProvider.wrapForDocker reads the volumes the
// hook pushes into the context when it builds argv.
type DockerHook struct {
	BaseHook
	Image       string
	Volumes     []string
	Options     []string
	MemoryLimit config.MemBytes
}

// NewDockerHook merges workerwide and per-mirror docker settings, and
// binds exclude_file read-only when set.
func NewDockerHook(g config.DockerConfig, m config.MirrorConfig) *DockerHook {
	h := &DockerHook{
		Image:       m.DockerImage,
		MemoryLimit: m.MemoryLimit,
	}
	h.Volumes = append(h.Volumes, g.Volumes...)
	h.Volumes = append(h.Volumes, m.DockerVolumes...)
	h.Options = append(h.Options, g.Options...)
	h.Options = append(h.Options, m.DockerOptions...)
	if m.ExcludeFile != "" {
		h.Volumes = append(h.Volumes, fmt.Sprintf("%s:%s:ro", m.ExcludeFile, m.ExcludeFile))
	}
	return h
}

// ContainerName is the name the provider passes to `docker run --name`.
func (h *DockerHook) ContainerName(providerName string) string {
	return "rtsync-job-" + providerName
}

func (h *DockerHook) PreExec(providerName, logDir, logFile, workingDir string, ctx *ctxstack.Stack) error {
	vols := []string{
		fmt.Sprintf("%s:%s", logDir, logDir),
		fmt.Sprintf("%s:%s", logFile, logFile),
		fmt.Sprintf("%s:%s", workingDir, workingDir),
	}
	vols = append(vols, h.Volumes...)
	ctx.Set(volumesKey, vols)
	return nil
}

func (h *DockerHook) PostExec(ctx *ctxstack.Stack, providerName string) error {
	name := h.ContainerName(providerName)
	filter := fmt.Sprintf("name=^%s$", name)
	for i := 0; i < 10; i++ {
		out, err := exec.Command("docker", "ps", "-a", "--filter", filter, "--format", "{{.Status}}").Output()
		if err != nil {
			return nil
		}
		if strings.TrimSpace(string(out)) == "" {
			return nil
		}
		time.Sleep(time.Second)
	}
	log.Logger.Warn().Str("container", name).Msg("docker container still present after exhausting retries")
	return nil
}

var _ Hook = (*DockerHook)(nil)

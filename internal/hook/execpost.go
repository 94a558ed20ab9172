package hook

import (
	"fmt"
	"os"
	"os/exec"

	ctxstack "github.com/cuemby/rtsync/internal/context"
)

// ExecPostHook runs a shell command after a successful or a failed
// attempt, tagged by which outcome it fires on.
type ExecPostHook struct {
	BaseHook
	Command string
	OnFail  bool
}

func NewExecPostHook(command string, onFail bool) *ExecPostHook {
	return &ExecPostHook{Command: command, OnFail: onFail}
}

func (h *ExecPostHook) run(providerName, workingDir, upstream, logDir, logFile, status string) error {
	if h.Command == "" {
		return nil
	}
	cmd := exec.Command("sh", "-c", h.Command)
	cmd.Dir = workingDir
	cmd.Env = append(os.Environ(),
		"RTSYNC_MIRROR_NAME="+providerName,
		"RTSYNC_WORKING_DIR="+workingDir,
		"RTSYNC_UPSTREAM_URL="+upstream,
		"RTSYNC_LOG_DIR="+logDir,
		"RTSYNC_LOG_FILE="+logFile,
		"RTSYNC_JOB_EXIT_STATUS="+status,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("exec_post_hook(%s): %w", status, err)
	}
	return nil
}

func (h *ExecPostHook) PostSuccess(providerName, workingDir, upstream, logDir, logFile string) error {
	if h.OnFail {
		return nil
	}
	return h.run(providerName, workingDir, upstream, logDir, logFile, "success")
}

func (h *ExecPostHook) PostFail(providerName, workingDir, upstream, logDir, logFile string, ctx *ctxstack.Stack) error {
	if !h.OnFail {
		return nil
	}
	return h.run(providerName, workingDir, upstream, logDir, logFile, "failure")
}

var _ Hook = (*ExecPostHook)(nil)

package hook

import (
	"fmt"
	"os"
	"os/exec"
)

// ZfsHook verifies working_dir is a mounted ZFS dataset before a job
// runs; it never touches the pool itself.
type ZfsHook struct {
	BaseHook
	ZPool string
}

func NewZfsHook(zPool string) *ZfsHook {
	return &ZfsHook{ZPool: zPool}
}

func (h *ZfsHook) PerJob(workingDir, providerName string) error {
	if _, err := os.Stat(workingDir); err != nil {
		return fmt.Errorf("zfs_hook: working_dir %s does not exist, create the zfs dataset first", workingDir)
	}
	if err := exec.Command("mountpoint", "-q", workingDir).Run(); err != nil {
		return fmt.Errorf("zfs_hook: %s is not a mountpoint, mount the zfs dataset first", workingDir)
	}
	return nil
}

var _ Hook = (*ZfsHook)(nil)

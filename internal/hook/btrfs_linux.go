//go:build linux

package hook

import (
	"fmt"
	"os"
	"os/exec"
)

// BtrfsSnapshotHook creates working_dir as a subvolume on first run
// and snapshots it to snapshot_path after every successful attempt.
type BtrfsSnapshotHook struct {
	BaseHook
	Name         string
	SnapshotPath string
}

func NewBtrfsSnapshotHook(name, snapshotPath string) *BtrfsSnapshotHook {
	return &BtrfsSnapshotHook{Name: name, SnapshotPath: snapshotPath}
}

func isSubvolume(path string) bool {
	return exec.Command("btrfs", "subvolume", "show", path).Run() == nil
}

func (h *BtrfsSnapshotHook) PerJob(workingDir, providerName string) error {
	if _, err := os.Stat(workingDir); os.IsNotExist(err) {
		if err := exec.Command("btrfs", "subvolume", "create", workingDir).Run(); err != nil {
			return fmt.Errorf("btrfs_snapshot_hook: create subvolume %s: %w", workingDir, err)
		}
		return nil
	}
	if !isSubvolume(workingDir) {
		return fmt.Errorf("btrfs_snapshot_hook: %s exists but is not a btrfs subvolume", workingDir)
	}
	return nil
}

func (h *BtrfsSnapshotHook) PostSuccess(providerName, workingDir, upstream, logDir, logFile string) error {
	if _, err := os.Stat(h.SnapshotPath); err == nil {
		if !isSubvolume(h.SnapshotPath) {
			return fmt.Errorf("btrfs_snapshot_hook: %s exists but is not a btrfs subvolume", h.SnapshotPath)
		}
		if err := exec.Command("btrfs", "subvolume", "delete", h.SnapshotPath).Run(); err != nil {
			return fmt.Errorf("btrfs_snapshot_hook: delete old snapshot %s: %w", h.SnapshotPath, err)
		}
	}
	if err := exec.Command("btrfs", "subvolume", "snapshot", workingDir, h.SnapshotPath).Run(); err != nil {
		return fmt.Errorf("btrfs_snapshot_hook: snapshot %s -> %s: %w", workingDir, h.SnapshotPath, err)
	}
	return nil
}

var _ Hook = (*BtrfsSnapshotHook)(nil)

//go:build !linux

package hook

// BtrfsSnapshotHook is a no-op outside Linux: btrfs tooling is
// Linux-specific and the hook's phases all default to BaseHook's
// no-ops on this platform.
type BtrfsSnapshotHook struct {
	BaseHook
	Name         string
	SnapshotPath string
}

func NewBtrfsSnapshotHook(name, snapshotPath string) *BtrfsSnapshotHook {
	return &BtrfsSnapshotHook{Name: name, SnapshotPath: snapshotPath}
}

var _ Hook = (*BtrfsSnapshotHook)(nil)

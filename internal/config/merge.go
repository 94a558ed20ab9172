package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cuemby/rtsync/internal/log"
)

// merge produces the field-wise right-biased merge of parent and child:
// any field the child leaves at its zero value inherits the parent's.
// Slices and maps merge by child-wins-if-non-nil, not by element union.
func merge(parent, child MirrorConfig) MirrorConfig {
	out := parent
	out.Name = child.Name
	if child.Provider != "" {
		out.Provider = child.Provider
	}
	if child.Upstream != "" {
		out.Upstream = child.Upstream
	}
	if child.Interval != nil {
		out.Interval = child.Interval
	}
	if child.Retry != nil {
		out.Retry = child.Retry
	}
	if child.Timeout != nil {
		out.Timeout = child.Timeout
	}
	if child.MirrorDir != "" {
		out.MirrorDir = child.MirrorDir
	}
	if child.MirrorSubDir != "" {
		out.MirrorSubDir = child.MirrorSubDir
	}
	if child.LogDir != "" {
		out.LogDir = child.LogDir
	}
	if child.Env != nil {
		out.Env = child.Env
	}
	if child.Role != "" {
		out.Role = child.Role
	}
	if child.Command != "" {
		out.Command = child.Command
	}
	if child.FailOnMatch != "" {
		out.FailOnMatch = child.FailOnMatch
	}
	if child.SizePattern != "" {
		out.SizePattern = child.SizePattern
	}
	out.UseIPv4 = out.UseIPv4 || child.UseIPv4
	out.UseIPv6 = out.UseIPv6 || child.UseIPv6
	if child.ExcludeFile != "" {
		out.ExcludeFile = child.ExcludeFile
	}
	if child.Username != "" {
		out.Username = child.Username
	}
	if child.Password != "" {
		out.Password = child.Password
	}
	out.RsyncNoTimeout = out.RsyncNoTimeout || child.RsyncNoTimeout
	if child.RsyncTimeout != nil {
		out.RsyncTimeout = child.RsyncTimeout
	}
	if child.RsyncOptions != nil {
		out.RsyncOptions = child.RsyncOptions
	}
	if child.RsyncOverride != nil {
		out.RsyncOverride = child.RsyncOverride
	}
	if child.Stage1Profile != "" {
		out.Stage1Profile = child.Stage1Profile
	}
	if child.MemoryLimit != 0 {
		out.MemoryLimit = child.MemoryLimit
	}
	if child.DockerImage != "" {
		out.DockerImage = child.DockerImage
	}
	if child.DockerVolumes != nil {
		out.DockerVolumes = child.DockerVolumes
	}
	if child.DockerOptions != nil {
		out.DockerOptions = child.DockerOptions
	}
	if child.SnapshotPath != "" {
		out.SnapshotPath = child.SnapshotPath
	}
	if child.ExecOnSuccess != "" {
		out.ExecOnSuccess = child.ExecOnSuccess
	}
	if child.ExecOnFailure != "" {
		out.ExecOnFailure = child.ExecOnFailure
	}
	if child.ExecOnSuccessExtra != "" {
		out.ExecOnSuccessExtra = child.ExecOnSuccessExtra
	}
	if child.ExecOnFailureExtra != "" {
		out.ExecOnFailureExtra = child.ExecOnFailureExtra
	}
	out.ChildMirrors = child.ChildMirrors
	return out
}

// RecursiveMirrors walks root's child_mirrors pre-order, threading the
// accumulated merge from root to leaf, and returns only the leaves.
// Deliberately not collapsed to simple inheritance: a grandchild's
// values must win over both its parent's and its grandparent's.
func RecursiveMirrors(root MirrorConfig) []MirrorConfig {
	if len(root.ChildMirrors) == 0 {
		leaf := root
		leaf.ChildMirrors = nil
		return []MirrorConfig{leaf}
	}
	var leaves []MirrorConfig
	for _, child := range root.ChildMirrors {
		merged := merge(root, child)
		leaves = append(leaves, RecursiveMirrors(merged)...)
	}
	return leaves
}

// ApplyGlobalDefaults fills in fields a leaf left unset from the
// worker's global defaults, per spec §4.1 step 3.
func ApplyGlobalDefaults(m MirrorConfig, g GlobalConfig) MirrorConfig {
	out := m
	if out.Interval == nil {
		out.Interval = intPtr(g.Interval)
	}
	if out.Retry == nil {
		out.Retry = intPtr(g.Retry)
	}
	if out.Timeout == nil {
		out.Timeout = intPtr(g.Timeout)
	}
	if out.LogDir == "" {
		out.LogDir = renderLogDir(g.LogDir, out.Name)
	} else {
		out.LogDir = renderLogDir(out.LogDir, out.Name)
	}
	if out.MirrorDir == "" {
		sub := out.MirrorSubDir
		out.MirrorDir = filepath.Join(g.MirrorDir, sub, out.Name)
	}
	switch out.Role {
	case "":
		out.Role = RoleMaster
	case RoleMaster, RoleSlave:
	default:
		log.Logger.Warn().Str("mirror", out.Name).Str("role", string(out.Role)).
			Msg("unrecognized role, defaulting to master")
		out.Role = RoleMaster
	}
	if out.ExecOnSuccess == "" {
		out.ExecOnSuccess = g.ExecOnSuccess
	}
	if out.ExecOnFailure == "" {
		out.ExecOnFailure = g.ExecOnFailure
	}
	return out
}

// renderLogDir substitutes the single "name" template variable, e.g.
// "/var/log/rtsync/{{.Name}}" -> "/var/log/rtsync/debian".
func renderLogDir(tmpl, name string) string {
	if tmpl == "" {
		return ""
	}
	return strings.NewReplacer("{{.Name}}", name, "{{name}}", name).Replace(tmpl)
}

// Resolve flattens cfg.MirrorsRaw into cfg.Mirrors: recursive merge of
// child_mirrors, then global defaults applied to each leaf.
func Resolve(cfg *Config) error {
	var leaves []MirrorConfig
	for _, root := range cfg.MirrorsRaw {
		leaves = append(leaves, RecursiveMirrors(root)...)
	}
	seen := make(map[string]bool, len(leaves))
	out := make([]MirrorConfig, 0, len(leaves))
	for _, leaf := range leaves {
		if leaf.Name == "" {
			return fmt.Errorf("config: mirror with empty name")
		}
		if seen[leaf.Name] {
			return fmt.Errorf("config: duplicate mirror name %q", leaf.Name)
		}
		seen[leaf.Name] = true
		out = append(out, ApplyGlobalDefaults(leaf, cfg.Global))
	}
	cfg.Mirrors = out
	return nil
}

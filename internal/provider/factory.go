package provider

import (
	"fmt"

	"github.com/cuemby/rtsync/internal/config"
	"github.com/cuemby/rtsync/internal/hook"
)

type hookAdder interface {
	addHook(hook.Hook)
}

// New builds the concrete Provider for m and registers its hook
// pipeline in the fixed order: LogLimiter, ZfsHook, BtrfsSnapshotHook,
// DockerHook, ExecPost(success)+extra, ExecPost(failure)+extra.
func New(m config.MirrorConfig, zfsCfg config.ZFSConfig, btrfsCfg config.BtrfsSnapshotConfig, dockerCfg config.DockerConfig) (Provider, error) {
	p, err := buildConcrete(m)
	if err != nil {
		return nil, err
	}
	adder := p.(hookAdder)

	adder.addHook(hook.NewLogLimiter())

	if zfsCfg.Enable && zfsCfg.ZPool != "" {
		adder.addHook(hook.NewZfsHook(zfsCfg.ZPool))
	}

	if btrfsCfg.Enable && (m.SnapshotPath != "" || btrfsCfg.SnapshotPath != "") {
		snapshotPath := m.SnapshotPath
		if snapshotPath == "" {
			snapshotPath = btrfsCfg.SnapshotPath + "/" + m.Name
		}
		adder.addHook(hook.NewBtrfsSnapshotHook(m.Name, snapshotPath))
	}

	if dockerCfg.Enable && m.DockerImage != "" {
		adder.addHook(hook.NewDockerHook(dockerCfg, m))
	}

	if m.ExecOnSuccess != "" {
		adder.addHook(hook.NewExecPostHook(m.ExecOnSuccess, false))
	}
	if m.ExecOnSuccessExtra != "" {
		adder.addHook(hook.NewExecPostHook(m.ExecOnSuccessExtra, false))
	}
	if m.ExecOnFailure != "" {
		adder.addHook(hook.NewExecPostHook(m.ExecOnFailure, true))
	}
	if m.ExecOnFailureExtra != "" {
		adder.addHook(hook.NewExecPostHook(m.ExecOnFailureExtra, true))
	}

	return p, nil
}

func buildConcrete(m config.MirrorConfig) (Provider, error) {
	switch m.Provider {
	case config.ProviderCommand:
		return NewCmdProvider(m)
	case config.ProviderRsync:
		return NewRsyncProvider(m)
	case config.ProviderTwoStageRsync:
		return NewTwoStageRsyncProvider(m)
	default:
		return nil, fmt.Errorf("provider: unknown provider kind %q for mirror %s", m.Provider, m.Name)
	}
}

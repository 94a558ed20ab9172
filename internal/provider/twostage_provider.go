package provider

import (
	"fmt"
	"strings"

	"github.com/cuemby/rtsync/internal/config"
)

var stage1BaseOptions = []string{"-aHvh", "--no-o", "--no-g", "--stats", "--safe-links"}

var stage1Profiles = map[string][]string{
	"debian": {
		"--include=*.diff/", "--include=by-hash/",
		"--exclude=*.diff/Index", "--exclude=Contents*", "--exclude=Packages*",
		"--exclude=Sources*", "--exclude=Release*", "--exclude=InRelease",
		"--exclude=i18n/*", "--exclude=dep11/*", "--exclude=installer-*/current",
		"--exclude=ls-lR*",
	},
	"debian-oldstyle": {
		"--exclude=Packages*", "--exclude=Sources*", "--exclude=Release*",
		"--exclude=InRelease", "--exclude=i18n/*", "--exclude=ls-lR*",
		"--exclude=dep11/*",
	},
}

// TwoStageRsyncProvider runs a restricted first pass (no delete, index
// files excluded) followed by the full default rsync, reducing
// client-visible inconsistency during sync.
type TwoStageRsyncProvider struct {
	BaseProvider
	profile    string
	stage1Opts []string
	stage2Opts []string
	username   string
	password   string
}

// NewTwoStageRsyncProvider validates the profile eagerly: an unknown
// profile must fail before any process is spawned.
func NewTwoStageRsyncProvider(m config.MirrorConfig) (*TwoStageRsyncProvider, error) {
	if !strings.HasSuffix(m.Upstream, "/") {
		return nil, fmt.Errorf("two_stage_rsync_provider %s: upstream must end with /", m.Name)
	}
	profile := m.Stage1Profile
	if profile == "" {
		profile = "debian"
	}
	excludes, ok := stage1Profiles[profile]
	if !ok {
		return nil, fmt.Errorf("two_stage_rsync_provider %s: unknown stage1_profile %q", m.Name, profile)
	}

	p := &TwoStageRsyncProvider{
		BaseProvider: newBase(m.Name, m.Upstream, m),
		profile:      profile,
		username:     m.Username,
		password:     m.Password,
	}
	stage1 := append([]string(nil), stage1BaseOptions...)
	stage1 = append(stage1, excludes...)
	p.stage1Opts = stage1
	p.stage2Opts = buildRsyncOptions(m)
	return p, nil
}

func (p *TwoStageRsyncProvider) Kind() config.ProviderKind { return config.ProviderTwoStageRsync }

func (p *TwoStageRsyncProvider) env() map[string]string {
	env := map[string]string{}
	if p.username != "" {
		env["USER"] = p.username
	}
	if p.password != "" {
		env["RSYNC_PASSWORD"] = p.password
	}
	return env
}

func (p *TwoStageRsyncProvider) Run(started chan<- struct{}) error {
	stage1Argv := append([]string{"rsync"}, p.stage1Opts...)
	stage1Argv = append(stage1Argv, p.Upstream(), p.WorkingDir())
	if err := p.runOneChild(stage1Argv, p.WorkingDir(), p.env(), 0, started); err != nil {
		if code, ok := exitCodeOf(err); ok {
			return fmt.Errorf("stage1: %s", TranslateRsyncExitCode(code))
		}
		return fmt.Errorf("stage1: %w", err)
	}

	stage2Argv := append([]string{"rsync"}, p.stage2Opts...)
	stage2Argv = append(stage2Argv, p.Upstream(), p.WorkingDir())
	if err := p.runOneChild(stage2Argv, p.WorkingDir(), p.env(), 1, started); err != nil {
		if code, ok := exitCodeOf(err); ok {
			return fmt.Errorf("stage2: %s", TranslateRsyncExitCode(code))
		}
		return fmt.Errorf("stage2: %w", err)
	}

	size, _ := ExtractSizeFromRsyncLog(p.LogFile())
	p.dataSize = size
	return nil
}

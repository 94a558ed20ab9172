package provider

import (
	"fmt"
	"strings"

	"github.com/cuemby/rtsync/internal/config"
)

var defaultRsyncOptions = []string{
	"-aHvh", "--no-o", "--no-g", "--stats",
	"--filter", "risk .~tmp~/",
	"--exclude", ".~tmp~/",
	"--delete", "--delete-after", "--delay-updates", "--safe-links",
}

// RsyncProvider builds argv for a single rsync invocation.
type RsyncProvider struct {
	BaseProvider
	options     []string
	username    string
	password    string
}

// NewRsyncProvider validates and builds a RsyncProvider. upstream must
// end with "/".
func NewRsyncProvider(m config.MirrorConfig) (*RsyncProvider, error) {
	if !strings.HasSuffix(m.Upstream, "/") {
		return nil, fmt.Errorf("rsync_provider %s: upstream must end with /", m.Name)
	}

	p := &RsyncProvider{
		BaseProvider: newBase(m.Name, m.Upstream, m),
		username:     m.Username,
		password:     m.Password,
	}
	p.options = buildRsyncOptions(m)
	return p, nil
}

func buildRsyncOptions(m config.MirrorConfig) []string {
	opts := append([]string(nil), defaultRsyncOptions...)
	if len(m.RsyncOverride) > 0 {
		opts = append([]string(nil), m.RsyncOverride...)
	}

	if !m.RsyncNoTimeout {
		timeout := 120
		if m.RsyncTimeout != nil && *m.RsyncTimeout > 0 {
			timeout = *m.RsyncTimeout
		}
		opts = append(opts, fmt.Sprintf("--timeout=%d", timeout))
	}

	if m.UseIPv6 {
		opts = append(opts, "-6")
	} else if m.UseIPv4 {
		opts = append(opts, "-4")
	}

	if m.ExcludeFile != "" {
		opts = append(opts, "--exclude-from", m.ExcludeFile)
	}
	opts = append(opts, m.RsyncOptions...)
	return opts
}

func (p *RsyncProvider) Kind() config.ProviderKind { return config.ProviderRsync }

func (p *RsyncProvider) env() map[string]string {
	env := map[string]string{}
	if p.username != "" {
		env["USER"] = p.username
	}
	if p.password != "" {
		env["RSYNC_PASSWORD"] = p.password
	}
	return env
}

func (p *RsyncProvider) Run(started chan<- struct{}) error {
	argv := append([]string{"rsync"}, p.options...)
	argv = append(argv, p.Upstream(), p.WorkingDir())

	err := p.runOneChild(argv, p.WorkingDir(), p.env(), 0, started)
	if err != nil {
		if code, ok := exitCodeOf(err); ok {
			return fmt.Errorf("%s", TranslateRsyncExitCode(code))
		}
		return err
	}

	size, _ := ExtractSizeFromRsyncLog(p.LogFile())
	p.dataSize = size
	return nil
}

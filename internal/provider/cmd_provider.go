package provider

import (
	"fmt"
	"regexp"

	"github.com/cuemby/rtsync/internal/config"
)

// CmdProvider runs an arbitrary, shell-tokenized command.
type CmdProvider struct {
	BaseProvider
	argv        []string
	userEnv     map[string]string
	failOnMatch *regexp.Regexp
	sizePattern *regexp.Regexp
}

// NewCmdProvider builds a CmdProvider from m. command is tokenized by
// POSIX shell rules.
func NewCmdProvider(m config.MirrorConfig) (*CmdProvider, error) {
	argv, err := splitShellWords(m.Command)
	if err != nil {
		return nil, fmt.Errorf("cmd_provider %s: %w", m.Name, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("cmd_provider %s: command must have at least one token", m.Name)
	}

	p := &CmdProvider{
		BaseProvider: newBase(m.Name, m.Upstream, m),
		argv:         argv,
		userEnv:      m.Env,
	}

	if m.FailOnMatch != "" {
		re, err := regexp.Compile(m.FailOnMatch)
		if err != nil {
			return nil, fmt.Errorf("cmd_provider %s: bad fail_on_match: %w", m.Name, err)
		}
		p.failOnMatch = re
	}
	if m.SizePattern != "" {
		re, err := regexp.Compile(m.SizePattern)
		if err != nil {
			return nil, fmt.Errorf("cmd_provider %s: bad size_pattern: %w", m.Name, err)
		}
		p.sizePattern = re
	}
	return p, nil
}

func (p *CmdProvider) Kind() config.ProviderKind { return config.ProviderCommand }

func (p *CmdProvider) env() map[string]string {
	env := map[string]string{
		"RTSYNC_MIRROR_NAME":  p.Name(),
		"RTSYNC_WORKING_DIR":  p.WorkingDir(),
		"RTSYNC_UPSTREAM_URL": p.Upstream(),
		"RTSYNC_LOG_DIR":      p.LogDir(),
		"RTSYNC_LOG_FILE":     p.LogFile(),
	}
	for k, v := range p.userEnv {
		env[k] = v
	}
	return env
}

func (p *CmdProvider) Run(started chan<- struct{}) error {
	err := p.runOneChild(p.argv, p.WorkingDir(), p.env(), 0, started)
	if err != nil {
		if code, ok := exitCodeOf(err); ok {
			return fmt.Errorf("%s", TranslateGenericExitCode(code))
		}
		return err
	}

	if p.failOnMatch != nil {
		matched, ferr := logFileMatches(p.LogFile(), p.failOnMatch)
		if ferr != nil {
			return ferr
		}
		if matched {
			return fmt.Errorf("cmd_provider %s: fail_on_match matched in log", p.Name())
		}
	}

	if p.sizePattern != nil {
		size, _ := lastSubmatch(p.LogFile(), p.sizePattern)
		p.dataSize = size // error deliberately swallowed, mirroring source
	}
	return nil
}

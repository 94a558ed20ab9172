// Package provider builds argv/env for one sync attempt and drives it
// to completion: spawn, stream to a rotated log, wait, translate the
// exit status, and extract a reported data size. Three concrete
// variants (Command, Rsync, TwoStageRsync) share BaseProvider.
package provider

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/rtsync/internal/config"
	ctxstack "github.com/cuemby/rtsync/internal/context"
	"github.com/cuemby/rtsync/internal/hook"
	"github.com/cuemby/rtsync/internal/runner"
)

const (
	workingDirKey = "working_dir"
	logDirKey     = "log_dir"
	logFileKey    = "log_file"
)

// Provider is the small, closed method set every sync backend
// implements. Deliberately not modelled as ad-hoc dynamic dispatch
// over many small interfaces: the set is fixed by spec and BaseProvider
// supplies everything but Kind and Run.
type Provider interface {
	Name() string
	Upstream() string
	Kind() config.ProviderKind
	IsMaster() bool
	WorkingDir() string
	LogDir() string
	LogFile() string
	Interval() time.Duration
	Retry() int
	Timeout() time.Duration
	DataSize() string
	Hooks() []hook.Hook
	Context() *ctxstack.Stack

	// Run performs one complete sync attempt: prepares the log file,
	// spawns the child (possibly more than one, for two-stage), signals
	// started after each spawn, waits, and on success extracts
	// DataSize. A nonzero/failed exit is returned as an error whose
	// message is already translated per the rsync or generic exit-code
	// table.
	Run(started chan<- struct{}) error

	// Terminate kills any in-flight child for the current attempt.
	Terminate(grace time.Duration) error
}

// BaseProvider is the shared mixin embedded by every concrete provider.
type BaseProvider struct {
	name     string
	upstream string
	interval time.Duration
	retry    int
	timeout  time.Duration
	isMaster bool

	ctx    *ctxstack.Stack
	hooks  []hook.Hook
	docker *hook.DockerHook

	dataSize string

	current *runner.CmdJob
}

func newBase(name, upstream string, m config.MirrorConfig) BaseProvider {
	interval := 0
	if m.Interval != nil {
		interval = *m.Interval
	}
	retry := 3
	if m.Retry != nil && *m.Retry > 0 {
		retry = *m.Retry
	}
	timeout := 0
	if m.Timeout != nil {
		timeout = *m.Timeout
	}

	ctx := ctxstack.New()
	ctx.Set(workingDirKey, m.MirrorDir)
	ctx.Set(logDirKey, m.LogDir)
	ctx.Set(logFileKey, "")

	return BaseProvider{
		name:     name,
		upstream: upstream,
		interval: time.Duration(interval) * time.Minute,
		retry:    retry,
		timeout:  time.Duration(timeout) * time.Second,
		isMaster: m.Role == config.RoleMaster,
		ctx:      ctx,
	}
}

func (b *BaseProvider) Name() string             { return b.name }
func (b *BaseProvider) Upstream() string         { return b.upstream }
func (b *BaseProvider) IsMaster() bool           { return b.isMaster }
func (b *BaseProvider) Interval() time.Duration  { return b.interval }
func (b *BaseProvider) Retry() int               { return b.retry }
func (b *BaseProvider) Timeout() time.Duration   { return b.timeout }
func (b *BaseProvider) DataSize() string         { return b.dataSize }
func (b *BaseProvider) Hooks() []hook.Hook       { return b.hooks }
func (b *BaseProvider) Context() *ctxstack.Stack { return b.ctx }

func (b *BaseProvider) WorkingDir() string {
	v, _ := b.ctx.GetString(workingDirKey)
	return v
}

func (b *BaseProvider) LogDir() string {
	v, _ := b.ctx.GetString(logDirKey)
	return v
}

func (b *BaseProvider) LogFile() string {
	v, _ := b.ctx.GetString(logFileKey)
	return v
}

func (b *BaseProvider) addHook(h hook.Hook) {
	b.hooks = append(b.hooks, h)
	if d, ok := h.(*hook.DockerHook); ok {
		b.docker = d
	}
}

// wrapForDocker builds the final argv/env for runOneChild: unchanged
// when no docker hook is registered, otherwise the argv/env the
// DockerHook's pre_exec already staged into the context (volumes) plus
// the hook's own image/options/memory_limit, matching the source's
// new_cmd_job docker-argv construction.
func (b *BaseProvider) wrapForDocker(argv []string, env map[string]string) []string {
	if b.docker == nil {
		return argv
	}
	vols, _ := b.ctx.GetStringSlice("volumes")

	out := []string{"docker", "run", "--rm", "-a", "STDOUT", "-a", "STDERR",
		"--name", b.docker.ContainerName(b.name),
		"-w", b.WorkingDir(),
		"-u", fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())}
	for _, v := range vols {
		out = append(out, "-v", v)
	}
	for k, v := range env {
		out = append(out, "-e", k+"="+v)
	}
	if b.docker.MemoryLimit.Value() != 0 {
		out = append(out, "-m", fmt.Sprintf("%d", b.docker.MemoryLimit.Value()))
	}
	out = append(out, b.docker.Options...)
	out = append(out, b.docker.Image)
	out = append(out, argv...)
	return out
}

// prepareLogFile opens the provider's current log file (per the
// context's log_file entry), create/truncate on the first stage,
// append on subsequent stages, and wires the *os.File into a CmdJob.
// log_file == /dev/null disables capture.
func (b *BaseProvider) prepareLogFile(job *runner.CmdJob, append bool) error {
	logFile := b.LogFile()
	if logFile == os.DevNull || logFile == "" {
		job.SetLogFile(nil)
		return nil
	}
	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(logFile, flags, 0o644)
	if err != nil {
		return fmt.Errorf("provider: open log file %s: %w", logFile, err)
	}
	job.SetLogFile(f)
	return nil
}

func (b *BaseProvider) Terminate(grace time.Duration) error {
	if b.current == nil {
		return nil
	}
	return b.current.Terminate(grace)
}

// runOneChild prepares the log file for stageIndex, spawns argv in
// workingDir/env, signals started, waits, and returns the raw exit
// error (nil on success) for the caller to translate.
func (b *BaseProvider) runOneChild(argv []string, workingDir string, env map[string]string, stageIndex int, started chan<- struct{}) error {
	finalArgv := b.wrapForDocker(argv, env)
	finalEnv := env
	if b.docker != nil {
		finalEnv = nil // already baked into -e flags
	}

	job, err := runner.New(finalArgv, workingDir, finalEnv)
	if err != nil {
		return err
	}
	b.current = job

	if err := b.prepareLogFile(job, stageIndex > 0); err != nil {
		return err
	}
	if err := job.Start(); err != nil {
		return fmt.Errorf("provider: spawn %v: %w", argv, err)
	}
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	_, err = job.Wait()
	return err
}

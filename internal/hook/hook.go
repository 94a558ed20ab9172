// Package hook implements the ordered pipeline of side effects run
// around a provider's sync attempt: per_job, pre_exec, post_exec, and
// post_{success,fail}. Hooks run in registration order; post-phases run
// in reverse registration order.
package hook

import (
	ctxstack "github.com/cuemby/rtsync/internal/context"
)

// Phase names a pipeline phase, used only for error messages.
type Phase string

const (
	PhasePerJob      Phase = "per_job"
	PhasePreExec     Phase = "pre_exec"
	PhasePostExec    Phase = "post_exec"
	PhasePostSuccess Phase = "post_success"
	PhasePostFail    Phase = "post_fail"
)

// Hook is one pluggable pipeline participant. All methods default to
// no-ops via BaseHook; concrete hooks embed it and override what they
// need.
type Hook interface {
	PerJob(workingDir, providerName string) error
	PreExec(providerName, logDir, logFile, workingDir string, ctx *ctxstack.Stack) error
	PostExec(ctx *ctxstack.Stack, providerName string) error
	PostSuccess(providerName, workingDir, upstream, logDir, logFile string) error
	PostFail(providerName, workingDir, upstream, logDir, logFile string, ctx *ctxstack.Stack) error
}

// BaseHook gives every concrete hook no-op defaults for the phases it
// doesn't care about.
type BaseHook struct{}

func (BaseHook) PerJob(workingDir, providerName string) error { return nil }

func (BaseHook) PreExec(providerName, logDir, logFile, workingDir string, ctx *ctxstack.Stack) error {
	return nil
}

func (BaseHook) PostExec(ctx *ctxstack.Stack, providerName string) error { return nil }

func (BaseHook) PostSuccess(providerName, workingDir, upstream, logDir, logFile string) error {
	return nil
}

func (BaseHook) PostFail(providerName, workingDir, upstream, logDir, logFile string, ctx *ctxstack.Stack) error {
	return nil
}

var _ Hook = BaseHook{}

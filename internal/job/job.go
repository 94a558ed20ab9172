// Package job implements the per-mirror state machine: one goroutine
// per job, a unit-capacity control channel, a retry-bounded attempt
// loop gated by a worker-wide semaphore (with a one-shot ForceStart
// bypass), and status messages emitted on the worker's manager
// channel.
package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/rtsync/internal/hook"
	"github.com/cuemby/rtsync/internal/log"
	"github.com/cuemby/rtsync/internal/provider"
	"github.com/cuemby/rtsync/internal/wire"
)

// State is the job's lifecycle state (spec §4.5).
type State int

const (
	StateNone State = iota
	StateReady
	StatePaused
	StateDisabled
	StateHalting
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StateDisabled:
		return "disabled"
	case StateHalting:
		return "halting"
	default:
		return "unknown"
	}
}

// Action is one control-channel message.
type Action int

const (
	ActionStart Action = iota
	ActionStop
	ActionDisable
	ActionRestart
	ActionPing
	ActionHalt
	ActionForceStart
)

// Message is one status event, emitted to the worker's manager channel.
type Message struct {
	Name     string
	Worker   string
	Status   wire.SyncStatus
	Msg      string
	Schedule bool
	Size     string
}

// Semaphore is the worker-global concurrency gate. Jobs acquire one
// ticket per attempt; ForceStart injects a one-shot bypass that races
// the semaphore in the attempt's acquisition select without consuming a
// ticket, preserving the cap for every other job.
type Semaphore chan struct{}

func NewSemaphore(tickets int) Semaphore {
	return make(Semaphore, tickets)
}

func (s Semaphore) acquire() { s <- struct{}{} }
func (s Semaphore) release() { <-s }

// Job owns one mirror's provider and lifecycle.
type Job struct {
	name     string
	workerID string
	provider provider.Provider
	sem      Semaphore

	ctrl        chan Action
	disabledSig chan struct{}

	out chan<- Message

	mu    sync.Mutex
	state State

	bypass chan struct{} // buffered; one token per pending ForceStart
}

// New builds a job. out is the worker's bounded manager channel; sem is
// the worker-wide concurrency semaphore.
func New(name, workerID string, p provider.Provider, sem Semaphore, out chan<- Message) *Job {
	return &Job{
		name:        name,
		workerID:    workerID,
		provider:    p,
		sem:         sem,
		ctrl:        make(chan Action, 1),
		disabledSig: make(chan struct{}),
		out:         out,
		bypass:      make(chan struct{}, 8),
	}
}

func (j *Job) Name() string { return j.name }

// Provider exposes the job's provider, read-only, for callers (the
// worker orchestrator) that need its static fields such as Interval.
func (j *Job) Provider() provider.Provider { return j.provider }

// SetInitialState seeds the job's state before its goroutine starts.
// Used only by the worker orchestrator at startup to honour a
// previously observed Disabled/Paused status fetched from the manager
// (spec §4.8 step 4), since those states cannot otherwise be reached
// except by transitioning out of Ready.
func (j *Job) SetInitialState(s State) { j.setState(s) }

// WaitDisabled blocks until the job reaches StateDisabled or timeout
// elapses, returning whether it did. Used to make the control HTTP
// endpoint's cmd=Disable synchronous (spec §6: "job.Disable, wait for
// disabled signal") despite the job goroutine itself staying alive and
// re-armable, unlike the terminal Halt case which has a real channel.
func (j *Job) WaitDisabled(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if j.State() == StateDisabled {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// Send delivers a control action, blocking if the channel is full
// (back-pressure per spec §5: the control channel is unit capacity).
func (j *Job) Send(a Action) {
	j.ctrl <- a
}

// Disabled is closed once the job's goroutine has fully exited
// (Halt only; Disable re-arms on a later Start/Restart/ForceStart).
func (j *Job) Disabled() <-chan struct{} { return j.disabledSig }

// Run is the job's top-level goroutine: the per-spec "run" loop.
func (j *Job) Run() {
	defer close(j.disabledSig)
	for action := range j.ctrl {
		switch action {
		case ActionHalt:
			j.setState(StateHalting)
			return
		case ActionDisable:
			j.setState(StateDisabled)
		case ActionStop:
			if j.State() == StateReady {
				j.setState(StatePaused)
			}
		case ActionPing:
			// ack only; no state change
		case ActionStart, ActionRestart, ActionForceStart:
			if action == ActionForceStart {
				select {
				case j.bypass <- struct{}{}:
				default:
				}
			}
			j.setState(StateReady)
			if halt := j.runSession(); halt {
				return
			}
		}
	}
}

// runSession executes one Ready session: the retry-bounded attempt
// loop, concurrently watching the control channel so Stop/Disable/
// Restart/Halt can kill the in-flight attempt. It returns true if the
// job's goroutine should exit (Halt was received).
func (j *Job) runSession() bool {
	killCh := make(chan struct{})
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		j.runRetryLoop(killCh)
	}()

	for {
		select {
		case <-doneCh:
			return false
		case action, ok := <-j.ctrl:
			if !ok {
				return false
			}
			switch action {
			case ActionForceStart:
				select {
				case j.bypass <- struct{}{}:
				default:
				}
			case ActionPing:
				// ack only
			case ActionStop:
				closeOnce(killCh)
				<-doneCh
				j.setState(StatePaused)
				return false
			case ActionDisable:
				closeOnce(killCh)
				<-doneCh
				j.setState(StateDisabled)
				return false
			case ActionRestart:
				closeOnce(killCh)
				<-doneCh
				return j.runSession()
			case ActionHalt:
				closeOnce(killCh)
				<-doneCh
				j.setState(StateHalting)
				return true
			case ActionStart:
				// already running; no-op per spec (no kill on Start).
			}
		}
	}
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// runRetryLoop is the per-attempt pipeline with retry, per spec §4.5.
func (j *Job) runRetryLoop(killCh <-chan struct{}) {
	retry := j.provider.Retry()
	if retry <= 0 {
		retry = 1
	}

	select {
	case <-killCh:
		return
	default:
	}

	if err := j.runPerJobHooks(); err != nil {
		j.emit(wire.StatusFailed, err.Error(), false, "")
		return
	}

	j.emit(wire.StatusPreSyncing, "", false, "")

	for attempt := 1; attempt <= retry; attempt++ {
		last := attempt == retry

		acquired, cancelled := j.acquire(killCh)
		if cancelled {
			return
		}

		err := j.runOneAttempt(killCh)

		if acquired {
			j.sem.release()
		}

		if err == nil {
			j.emit(wire.StatusSuccess, "", j.State() == StateReady, j.provider.DataSize())
			return
		}

		select {
		case <-killCh:
			j.emit(wire.StatusFailed, "terminated by manager", false, "")
			return
		default:
		}

		j.emit(wire.StatusFailed, err.Error(), last, "")
		if last {
			return
		}
	}
}

// runPerJobHooks runs every hook's per_job phase once, in forward
// registration order, before the retry loop starts (spec §4.3/§4.5;
// original_source/crates/worker/src/job.rs runs PreJob hooks once
// before its retry loop). A failure here means the working directory
// could not be constructed or verified and aborts the job without ever
// reaching pre-syncing (spec §7).
func (j *Job) runPerJobHooks() error {
	p := j.provider
	for _, h := range p.Hooks() {
		if err := h.PerJob(p.WorkingDir(), p.Name()); err != nil {
			return fmt.Errorf("error exec hook %s: %w", hook.PhasePerJob, err)
		}
	}
	return nil
}

// acquire waits for either a semaphore ticket or a ForceStart bypass
// token, or observes kill before acquisition. Returns whether a ticket
// (not a bypass token) was acquired, and whether the attempt was
// cancelled before starting.
func (j *Job) acquire(killCh <-chan struct{}) (acquiredTicket bool, cancelled bool) {
	select {
	case <-j.bypass:
		return false, false
	case j.sem <- struct{}{}:
		return true, false
	case <-killCh:
		return false, true
	}
}

// runOneAttempt runs pre_exec hooks, the provider, post_exec hooks, and
// post_{success,fail} hooks for a single attempt.
func (j *Job) runOneAttempt(killCh <-chan struct{}) error {
	p := j.provider
	ctx := p.Context()

	j.emit(wire.StatusSyncing, "", false, "")

	for _, h := range p.Hooks() {
		if err := h.PreExec(p.Name(), p.LogDir(), p.LogFile(), p.WorkingDir(), ctx); err != nil {
			return fmt.Errorf("error exec hook %s: %w", hook.PhasePreExec, err)
		}
	}

	started := make(chan struct{}, 4)
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- p.Run(started) }()

	var runErr error
	var timeoutCh <-chan time.Time
	if p.Timeout() > 0 {
		timer := time.NewTimer(p.Timeout())
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case runErr = <-runErrCh:
	case <-timeoutCh:
		_ = p.Terminate(5 * time.Second)
		<-runErrCh
		runErr = fmt.Errorf("%s timeout after %s", p.Name(), p.Timeout())
	case <-killCh:
		_ = p.Terminate(5 * time.Second)
		<-runErrCh
		runErr = fmt.Errorf("terminated by manager")
	}

	for i := len(p.Hooks()) - 1; i >= 0; i-- {
		if err := p.Hooks()[i].PostExec(ctx, p.Name()); err != nil {
			log.Logger.Warn().Err(err).Str("job", p.Name()).Msg("post_exec hook error")
		}
	}

	if runErr == nil {
		for i := len(p.Hooks()) - 1; i >= 0; i-- {
			if err := p.Hooks()[i].PostSuccess(p.Name(), p.WorkingDir(), p.Upstream(), p.LogDir(), p.LogFile()); err != nil {
				return fmt.Errorf("error exec hook %s: %w", hook.PhasePostSuccess, err)
			}
		}
		return nil
	}

	for i := len(p.Hooks()) - 1; i >= 0; i-- {
		if err := p.Hooks()[i].PostFail(p.Name(), p.WorkingDir(), p.Upstream(), p.LogDir(), p.LogFile(), ctx); err != nil {
			log.Logger.Warn().Err(err).Str("job", p.Name()).Msg("post_fail hook error")
		}
	}
	return runErr
}

func (j *Job) emit(status wire.SyncStatus, msg string, schedule bool, size string) {
	m := Message{Name: j.name, Worker: j.workerID, Status: status, Msg: msg, Schedule: schedule, Size: size}
	select {
	case j.out <- m:
	case <-time.After(10 * time.Second):
		log.Logger.Warn().Str("job", j.name).Msg("manager channel send timed out")
	}
}

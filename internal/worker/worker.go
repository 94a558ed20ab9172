// Package worker implements the worker orchestrator (spec §4.8): it
// owns every mirror's Job, the schedule queue, the worker-global
// concurrency semaphore, and the control HTTP endpoint manager calls
// dispatch to. It registers with one or more managers, aligns initial
// job state from the manager's last-known status, and drives the
// scheduler loop until Halt.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/rtsync/internal/config"
	"github.com/cuemby/rtsync/internal/job"
	"github.com/cuemby/rtsync/internal/log"
	"github.com/cuemby/rtsync/internal/manager"
	"github.com/cuemby/rtsync/internal/metrics"
	"github.com/cuemby/rtsync/internal/provider"
	"github.com/cuemby/rtsync/internal/schedule"
	"github.com/cuemby/rtsync/internal/wire"
)

// jobEntry bundles a running job with the config it was built from and
// its provider's interval, so the orchestrator can requeue it and
// preserve its role/upstream when reporting status without re-reading
// the provider on every message.
type jobEntry struct {
	job      *job.Job
	cfg      config.MirrorConfig
	interval time.Duration
}

// Worker owns all jobs and the schedule queue for one process (spec
// §4.8, §3 "Ownership").
type Worker struct {
	id  string
	cfg *config.Config
	mc  *manager.Client

	sem job.Semaphore

	mu       sync.RWMutex
	jobs     map[string]*jobEntry
	statuses map[string]wire.MirrorStatus

	sched     *schedule.Queue
	managerCh chan job.Message

	httpSrv     *http.Server
	controlAddr string

	exit     chan struct{}
	exitOnce sync.Once
	wg       sync.WaitGroup

	lastPrevState prevStateTracker
}

// prevStateTracker carries a retired job's last state across a Reload
// from retireJob to replaceJob, since the two run back to back for a
// Modify but are otherwise unrelated calls.
type prevStateTracker struct {
	mu    sync.Mutex
	state map[string]job.State
}

func (t *prevStateTracker) set(name string, s job.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == nil {
		t.state = make(map[string]job.State)
	}
	t.state[name] = s
}

func (t *prevStateTracker) take(name string) job.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state[name]
	delete(t.state, name)
	return s
}

// New builds a Worker with one Job per resolved mirror (cfg.Mirrors),
// none of them started yet.
func New(cfg *config.Config) (*Worker, error) {
	bases := cfg.Manager.APIList
	if len(bases) == 0 && cfg.Manager.APIBase != "" {
		bases = []string{cfg.Manager.APIBase}
	}
	mc, err := manager.New(bases, cfg.Manager.Token, cfg.Manager.CACert)
	if err != nil {
		return nil, fmt.Errorf("worker: build manager client: %w", err)
	}

	concurrent := cfg.Global.Concurrent
	if concurrent <= 0 {
		concurrent = 1
	}

	w := &Worker{
		id:        uuid.New().String(),
		cfg:       cfg,
		mc:        mc,
		sem:       job.NewSemaphore(concurrent),
		jobs:      make(map[string]*jobEntry),
		statuses:  make(map[string]wire.MirrorStatus),
		sched:     schedule.New(),
		managerCh: make(chan job.Message, 32),
		exit:      make(chan struct{}),
	}

	for _, m := range cfg.Mirrors {
		je, err := w.buildJob(m)
		if err != nil {
			return nil, fmt.Errorf("worker: build job %s: %w", m.Name, err)
		}
		w.jobs[m.Name] = je
	}
	return w, nil
}

func (w *Worker) buildJob(m config.MirrorConfig) (*jobEntry, error) {
	p, err := provider.New(m, w.cfg.ZFS, w.cfg.BtrfsSnapshot, w.cfg.Docker)
	if err != nil {
		return nil, err
	}
	j := job.New(m.Name, w.id, p, w.sem, w.managerCh)
	return &jobEntry{job: j, cfg: m, interval: p.Interval()}, nil
}

// ControlAddr returns the bound address of the control HTTP endpoint,
// resolved after Start (useful when ListenPort is 0 for an ephemeral
// port in tests).
func (w *Worker) ControlAddr() string { return w.controlAddr }

func (w *Worker) selfURL() string {
	scheme := "http"
	if w.cfg.Server.SSLCert != "" && w.cfg.Server.SSLKey != "" {
		scheme = "https"
	}
	host := w.cfg.Server.Hostname
	if host == "" {
		host = w.cfg.Server.ListenAddr
	}
	return fmt.Sprintf("%s://%s:%d/", scheme, host, w.cfg.Server.ListenPort)
}

// Start runs the spec §4.8 startup sequence: register, serve control
// HTTP, align initial job state from the manager, push the first
// schedule snapshot, then launch the main loop.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.register(ctx); err != nil {
		return err
	}

	if err := w.serveControlHTTP(); err != nil {
		return err
	}

	w.alignInitialState(ctx)

	if err := w.pushSchedules(ctx); err != nil {
		log.Logger.Warn().Err(err).Msg("worker: push initial schedule snapshot failed")
	}

	w.wg.Add(1)
	go w.mainLoop(ctx)
	return nil
}

// register POSTs /workers with a ×10, 1s-delay retry policy (spec
// §4.8 step 2, §7 "Registration retries 10 × 1 s before giving up").
func (w *Worker) register(ctx context.Context) error {
	ws := wire.WorkerStatus{
		ID:           w.id,
		URL:          w.selfURL(),
		Token:        w.cfg.Manager.Token,
		LastRegister: time.Now().UTC(),
	}
	var err error
	for attempt := 1; attempt <= 10; attempt++ {
		if _, err = w.mc.RegisterWorker(ctx, ws); err == nil {
			return nil
		}
		log.Logger.Warn().Err(err).Int("attempt", attempt).Msg("worker: registration failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("worker: registration failed after 10 attempts: %w", err)
}

// alignInitialState fetches last-known status for every mirror and
// either honours a persisted Disabled/Paused state or schedules the
// job at last_update+interval clamped to now (spec §4.8 step 4), then
// launches every job's goroutine.
func (w *Worker) alignInitialState(ctx context.Context) {
	known, err := w.mc.FetchJobs(ctx, w.id)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("worker: fetch initial jobs failed; scheduling all jobs fresh")
	}
	lastKnown := make(map[string]wire.MirrorStatus, len(known))
	for _, s := range known {
		lastKnown[s.Name] = s
	}

	now := time.Now()
	w.mu.RLock()
	entries := make(map[string]*jobEntry, len(w.jobs))
	for k, v := range w.jobs {
		entries[k] = v
	}
	w.mu.RUnlock()

	for name, je := range entries {
		go je.job.Run()

		stored, ok := lastKnown[name]
		switch {
		case ok && stored.Status == wire.StatusDisabled:
			je.job.SetInitialState(job.StateDisabled)
		case ok && stored.Status == wire.StatusPaused:
			je.job.SetInitialState(job.StatePaused)
		default:
			due := now
			if ok && !stored.LastUpdate.IsZero() {
				due = stored.LastUpdate.Add(je.interval)
				if due.Before(now) {
					due = now
				}
			}
			w.sched.Add(name, due, je.job)
		}
	}
}

// mainLoop is the orchestrator's select loop (spec §4.8 "Main loop").
func (w *Worker) mainLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-w.managerCh:
			w.handleMessage(ctx, msg)
		case <-ticker.C:
			w.dispatchDue()
		case <-w.exit:
			w.drainTerminal(ctx)
			return
		}
	}
}

// dispatchDue pops every due job and sends Start. Sends happen on
// their own goroutine so a job whose unit-capacity control channel is
// still full from a previous action cannot stall the main loop (spec
// §5: "a manager that sends Start while the job is already Ready
// simply blocks").
func (w *Worker) dispatchDue() {
	due := w.sched.PopAllDue(time.Now())
	metrics.ScheduleQueueDepth.Set(float64(w.sched.Len()))
	for _, e := range due {
		j := e.Job
		go j.Send(job.ActionStart)
	}
}

// handleMessage forwards a status message to every manager, updates
// the worker's local status cache, re-queues the job's next run when
// the message is terminal and schedule-worthy, and republishes the
// schedule snapshot (spec §4.8 "A JobMessage arrives").
func (w *Worker) handleMessage(ctx context.Context, msg job.Message) {
	status := w.applyMessage(msg)

	if err := w.mc.ReportStatus(ctx, w.id, status); err != nil {
		log.Logger.Warn().Err(err).Str("job", msg.Name).Msg("worker: report status failed")
	}

	w.mu.RLock()
	je, ok := w.jobs[msg.Name]
	w.mu.RUnlock()

	if msg.Schedule && ok {
		switch je.job.State() {
		case job.StateReady, job.StateHalting:
			w.sched.Add(msg.Name, time.Now().Add(je.interval), je.job)
		}
	}

	if err := w.pushSchedules(ctx); err != nil {
		log.Logger.Warn().Err(err).Msg("worker: push schedule snapshot failed")
	}

	if msg.Status == wire.StatusSuccess || msg.Status == wire.StatusFailed {
		metrics.JobsTotal.WithLabelValues(msg.Name, string(msg.Status)).Inc()
	}
	metrics.JobsRunning.Set(float64(w.countRunning()))
}

// applyMessage folds one job.Message into the worker's local status
// cache for mirror name, applying the MirrorStatus invariants from
// spec §3 (last_update only advances on Success, last_ended on
// Success or Failed, last_started on entering PreSyncing, size only
// replaced by a non-empty non-"unknown" value). The manager applies
// these same invariants authoritatively; the worker keeps its own copy
// so every status it reports carries the accumulated timestamps and
// size, and so countRunning can read each job's latest status.
func (w *Worker) applyMessage(msg job.Message) wire.MirrorStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.statuses[msg.Name]
	s := prev
	s.Name = msg.Name
	s.Worker = w.id
	if je, ok := w.jobs[msg.Name]; ok {
		s.IsMaster = je.cfg.Role == config.RoleMaster
		s.Upstream = je.cfg.Upstream
	}
	s.Status = msg.Status
	s.ErrorMsg = msg.Msg

	now := time.Now().UTC()
	switch msg.Status {
	case wire.StatusPreSyncing:
		if prev.Status != wire.StatusPreSyncing {
			s.LastStarted = now
		}
	case wire.StatusSuccess:
		s.LastUpdate = now
		s.LastEnded = now
	case wire.StatusFailed:
		s.LastEnded = now
	}

	if msg.Size != "" && msg.Size != "unknown" {
		s.Size = msg.Size
	}

	w.statuses[msg.Name] = s
	return s
}

func (w *Worker) countRunning() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for name := range w.jobs {
		switch w.statuses[name].Status {
		case wire.StatusSyncing, wire.StatusPreSyncing:
			n++
		}
	}
	return n
}

// pushSchedules POSTs the full schedule snapshot (spec §4.9
// "snapshot").
func (w *Worker) pushSchedules(ctx context.Context) error {
	snap := w.sched.Snapshot()
	out := make([]wire.MirrorSchedule, 0, len(snap))
	for _, e := range snap {
		out = append(out, wire.MirrorSchedule{MirrorName: e.Name, NextSchedule: e.Due})
	}
	metrics.ScheduleQueueDepth.Set(float64(len(out)))
	return w.mc.PushSchedules(ctx, w.id, wire.MirrorSchedules{Schedules: out})
}

// drainTerminal flushes any already-queued terminal status messages so
// the last state reaches the manager before the process exits (spec
// §4.8 "Exit signal").
func (w *Worker) drainTerminal(ctx context.Context) {
	for {
		select {
		case msg := <-w.managerCh:
			if msg.Status == wire.StatusSuccess || msg.Status == wire.StatusFailed {
				w.handleMessage(ctx, msg)
			}
		default:
			return
		}
	}
}

// Reload applies the diff between the worker's current mirror list and
// newCfg's (spec §4.7, §4.8 "Hot reload"): Delete/Modify first (each
// draining the prior job via Disable before replacing or dropping it),
// then Add. A Modify preserves the job's previous Disabled/Paused
// state; otherwise the replacement is scheduled immediately.
func (w *Worker) Reload(ctx context.Context, newCfg *config.Config) error {
	w.mu.RLock()
	oldMirrors := make([]config.MirrorConfig, 0, len(w.jobs))
	for _, je := range w.jobs {
		oldMirrors = append(oldMirrors, je.cfg)
	}
	w.mu.RUnlock()

	ops := config.Diff(oldMirrors, newCfg.Mirrors)

	for _, op := range ops {
		if op.Op == config.DiffAdd {
			continue
		}
		w.retireJob(op.Mirror.Name)
		if op.Op == config.DiffModify {
			if err := w.replaceJob(op.Mirror); err != nil {
				log.Logger.Warn().Err(err).Str("mirror", op.Mirror.Name).Msg("worker: reload modify failed")
			}
		}
	}
	for _, op := range ops {
		if op.Op != config.DiffAdd {
			continue
		}
		if err := w.replaceJob(op.Mirror); err != nil {
			log.Logger.Warn().Err(err).Str("mirror", op.Mirror.Name).Msg("worker: reload add failed")
		}
	}

	w.cfg = newCfg
	return w.pushSchedules(ctx)
}

// retireJob disables and drains the named job, removes it from the
// schedule queue and the jobs map, and reports its final previous
// state so replaceJob can preserve it.
func (w *Worker) retireJob(name string) {
	w.mu.Lock()
	je, ok := w.jobs[name]
	if ok {
		delete(w.jobs, name)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	prevState := je.job.State()
	if prevState != job.StateDisabled {
		je.job.Send(job.ActionDisable)
		je.job.WaitDisabled(10 * time.Second)
	}
	w.sched.Remove(name)
	w.lastPrevState.set(name, prevState)
}

// replaceJob constructs and registers the job for m, preserving the
// prior Disabled/Paused state recorded by retireJob or scheduling it
// immediately.
func (w *Worker) replaceJob(m config.MirrorConfig) error {
	je, err := w.buildJob(m)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.jobs[m.Name] = je
	w.mu.Unlock()

	go je.job.Run()

	switch w.lastPrevState.take(m.Name) {
	case job.StateDisabled:
		je.job.SetInitialState(job.StateDisabled)
	case job.StatePaused:
		je.job.SetInitialState(job.StatePaused)
	default:
		w.sched.Add(m.Name, time.Now(), je.job)
	}
	return nil
}

// Halt sends Halt to every non-Disabled job, waits for each to report
// its disabled signal, then stops the main loop and deregisters (spec
// §4.8 "Halt()").
func (w *Worker) Halt(ctx context.Context) {
	w.mu.RLock()
	all := make([]*job.Job, 0, len(w.jobs))
	for _, je := range w.jobs {
		all = append(all, je.job)
	}
	w.mu.RUnlock()

	var halted []*job.Job
	for _, j := range all {
		if j.State() != job.StateDisabled {
			j.Send(job.ActionHalt)
			halted = append(halted, j)
		}
	}
	for _, j := range halted {
		<-j.Disabled()
	}

	w.exitOnce.Do(func() { close(w.exit) })
	w.wg.Wait()

	_ = w.mc.Deregister(ctx, w.id)

	if w.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = w.httpSrv.Shutdown(shutdownCtx)
	}
}

// serveControlHTTP binds and launches the worker's own control HTTP
// endpoint (spec §6). The listen step is synchronous so a bind failure
// surfaces to the caller before startup proceeds.
func (w *Worker) serveControlHTTP() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", w.controlHandler)
	mux.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf("%s:%d", w.cfg.Server.ListenAddr, w.cfg.Server.ListenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("worker: listen %s: %w", addr, err)
	}
	w.controlAddr = ln.Addr().String()

	w.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		var serveErr error
		if w.cfg.Server.SSLCert != "" && w.cfg.Server.SSLKey != "" {
			serveErr = w.httpSrv.ServeTLS(ln, w.cfg.Server.SSLCert, w.cfg.Server.SSLKey)
		} else {
			serveErr = w.httpSrv.Serve(ln)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Logger.Error().Err(serveErr).Msg("worker: control http server stopped")
		}
	}()
	return nil
}

// controlHandler implements POST / (spec §6 "Worker control HTTP").
func (w *Worker) controlHandler(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(wr, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var cmd wire.WorkerCmd
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(wr, http.StatusBadRequest, wire.MsgResponse{Msg: "bad request"})
		return
	}

	if cmd.Cmd == wire.CmdReload && cmd.MirrorID == "" {
		_ = syscall.Kill(os.Getpid(), syscall.SIGHUP)
		writeJSON(wr, http.StatusOK, wire.MsgResponse{Msg: "Ok"})
		return
	}

	w.mu.RLock()
	je, ok := w.jobs[cmd.MirrorID]
	w.mu.RUnlock()
	if !ok {
		writeJSON(wr, http.StatusNotFound, wire.MsgResponse{Msg: fmt.Sprintf("Mirror '%s' not found", cmd.MirrorID)})
		return
	}

	switch cmd.Cmd {
	case wire.CmdStart:
		if cmd.Options["force"] {
			je.job.Send(job.ActionForceStart)
		} else {
			je.job.Send(job.ActionStart)
		}
	case wire.CmdRestart:
		je.job.Send(job.ActionRestart)
	case wire.CmdStop:
		if je.job.State() != job.StateDisabled {
			je.job.Send(job.ActionStop)
		}
	case wire.CmdDisable:
		je.job.Send(job.ActionDisable)
		je.job.WaitDisabled(10 * time.Second)
	case wire.CmdPing:
		// ack only
	default:
		writeJSON(wr, http.StatusNotAcceptable, wire.MsgResponse{Msg: "not implemented"})
		return
	}
	writeJSON(wr, http.StatusOK, wire.MsgResponse{Msg: "Ok"})
}

func writeJSON(wr http.ResponseWriter, status int, body any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	_ = json.NewEncoder(wr).Encode(body)
}

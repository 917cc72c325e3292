// Package supervisor owns the fixed service registry and drives the
// start/stop/restart lifecycle, state persistence and health-monitor wiring.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stackd-io/stackd/internal/history"
	"github.com/stackd-io/stackd/internal/logger"
	"github.com/stackd-io/stackd/internal/metrics"
	"github.com/stackd-io/stackd/internal/monitor"
	"github.com/stackd-io/stackd/internal/proc"
	"github.com/stackd-io/stackd/internal/service"
	"github.com/stackd-io/stackd/internal/statefile"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultSettleDelay  = 2 * time.Second
	monitorStopTimeout  = 10 * time.Second
)

// Options configures a Supervisor. Zero-value durations take defaults; a nil
// Controller takes the real OS implementation.
type Options struct {
	Services  []service.Config
	StatePath string
	Log       logger.Config
	Ctrl      Controller
	Sinks     []history.Sink

	PollInterval time.Duration // startup health polling tick
	SettleDelay  time.Duration // pause after a pre-start cleanup sweep
	Monitor      monitor.Options
}

// Supervisor is the top-level orchestrator. Start/Stop are synchronous and
// hold a per-name lock, so a manual stop can never race a monitor-triggered
// recovery stop for the same service.
type Supervisor struct {
	reg       *service.Registry
	ctrl      Controller
	logCfg    logger.Config
	statePath string
	sinks     []history.Sink

	locks map[string]*sync.Mutex // fixed keys, built once with the registry

	stateMu sync.Mutex // serializes state-file writes

	monMu   sync.Mutex
	mon     *monitor.Monitor
	monOpts monitor.Options

	pollInterval time.Duration
	settleDelay  time.Duration
	sleep        func(time.Duration)
}

// New builds the registry from the fixed config set and best-effort
// reattaches to processes recorded in the state file that are still alive.
// Liveness only; health is not re-verified at load time.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		reg:          service.NewRegistry(opts.Services),
		ctrl:         opts.Ctrl,
		logCfg:       opts.Log,
		statePath:    opts.StatePath,
		sinks:        opts.Sinks,
		locks:        make(map[string]*sync.Mutex),
		monOpts:      opts.Monitor,
		pollInterval: opts.PollInterval,
		settleDelay:  opts.SettleDelay,
		sleep:        time.Sleep,
	}
	if s.ctrl == nil {
		s.ctrl = NewOSController()
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.settleDelay <= 0 {
		s.settleDelay = defaultSettleDelay
	}
	for _, name := range s.reg.Names() {
		s.locks[name] = &sync.Mutex{}
	}
	s.reattach()
	return s
}

// Registry exposes the shared registry for the monitor and status surfaces.
func (s *Supervisor) Registry() *service.Registry { return s.reg }

// reattach adopts pids from the persisted snapshot when the OS still reports
// them alive. A dead recorded pid leaves the descriptor STOPPED.
func (s *Supervisor) reattach() {
	if s.statePath == "" {
		return
	}
	snap, err := statefile.Load(s.statePath)
	if err != nil {
		// Missing or corrupt file: nothing to recover.
		slog.Debug("no persisted state to recover", "path", s.statePath, "error", err)
		return
	}
	for name, entry := range snap.Servers {
		d := s.reg.Get(name)
		if d == nil || entry.PID == nil {
			continue
		}
		if !s.ctrl.Alive(*entry.PID) {
			continue
		}
		started := time.Time{}
		if entry.StartTime != nil {
			started = *entry.StartTime
		}
		d.Reattach(*entry.PID, started)
		slog.Info("reattached to running service", "service", name, "pid", *entry.PID)
	}
}

// Start brings one service to RUNNING. Already RUNNING is a no-op success;
// an unknown name fails without side effects. The caller blocks until the
// service is healthy, the process dies, or the startup timeout passes.
func (s *Supervisor) Start(name string) error {
	d := s.reg.Get(name)
	if d == nil {
		return fmt.Errorf("unknown service: %s", name)
	}
	mu := s.locks[name]
	mu.Lock()
	defer mu.Unlock()

	if d.State() == service.StateRunning {
		return nil
	}

	s.transition(d, service.StateStarting, 0)
	if d.IsPortInUse() {
		// Occupied port: sweep unconditionally. No attempt to distinguish a
		// stale instance of this service from something unrelated on the
		// port; the marker scoping keeps the sweep away from other services.
		slog.Warn("port in use before start, sweeping", "service", name, "port", d.Port())
		s.ctrl.Sweep([]int{d.Port()}, []string{name})
		s.sleep(s.settleDelay)
	}

	cfg := d.Config()
	stdout, stderr := s.logCfg.Writers(name)
	h, err := s.ctrl.Spawn(proc.SpawnOptions{
		Command: cfg.Command,
		Dir:     cfg.WorkDir,
		Env:     cfg.Env,
		Marker:  name,
		Stdout:  stdout,
		Stderr:  stderr,
	})
	if err != nil {
		s.transition(d, service.StateError, 0)
		s.persist()
		s.record(history.EventError, d, err.Error())
		metrics.IncStartFailure(name)
		return fmt.Errorf("start %s: %w", name, err)
	}
	d.Attach(h)
	slog.Info("service spawned", "service", name, "pid", h.PID)
	s.persist()

	deadline := time.Now().Add(cfg.StartupTimeout)
	for time.Now().Before(deadline) {
		if !d.IsProcessAlive() {
			s.transition(d, service.StateError, 0)
			s.persist()
			s.record(history.EventError, d, "process died during startup")
			metrics.IncStartFailure(name)
			return fmt.Errorf("start %s: process died during startup", name)
		}
		if d.CheckHealth() {
			s.transition(d, service.StateRunning, 0)
			d.ResetHealthFailures()
			s.persist()
			s.record(history.EventStart, d, "")
			metrics.IncStart(name)
			slog.Info("service running", "service", name, "pid", d.PID())
			return nil
		}
		s.sleep(s.pollInterval)
	}

	// Not healthy within the window, even if the process still runs.
	s.transition(d, service.StateError, 0)
	s.persist()
	s.record(history.EventError, d, "startup timeout")
	metrics.IncStartFailure(name)
	return fmt.Errorf("start %s: not healthy within %s", name, cfg.StartupTimeout)
}

// Stop takes one service to STOPPED, killing its whole process tree.
// Already STOPPED is a no-op success.
func (s *Supervisor) Stop(name string) error {
	d := s.reg.Get(name)
	if d == nil {
		return fmt.Errorf("unknown service: %s", name)
	}
	mu := s.locks[name]
	mu.Lock()
	defer mu.Unlock()

	if d.State() == service.StateStopped {
		return nil
	}
	pid := d.PID()
	s.transition(d, service.StateStopping, 0)
	if pid > 0 {
		s.ctrl.KillTree(pid)
	}
	s.transition(d, service.StateStopped, 0)
	s.persist()
	s.record(history.EventStop, d, "")
	metrics.IncStop(name)
	slog.Info("service stopped", "service", name)
	return nil
}

// Restart is stop, a short pause, then start.
func (s *Supervisor) Restart(name string) error {
	if err := s.Stop(name); err != nil {
		return err
	}
	s.sleep(s.settleDelay)
	return s.Start(name)
}

// StartAll starts every service in declaration order. A failure does not
// abort the sequence; every service is attempted and the first error is
// returned.
func (s *Supervisor) StartAll() error {
	var firstErr error
	for _, name := range s.reg.Names() {
		if err := s.Start(name); err != nil {
			slog.Error("start failed", "service", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// StopAll stops every service gracefully, then always runs one final
// comprehensive sweep over all managed ports and markers.
func (s *Supervisor) StopAll() error {
	var firstErr error
	for _, name := range s.reg.Names() {
		if err := s.Stop(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.ctrl.Sweep(s.reg.Ports(), s.reg.Names())
	return firstErr
}

// RestartAll is StopAll, a short pause, then StartAll.
func (s *Supervisor) RestartAll() error {
	if err := s.StopAll(); err != nil {
		return err
	}
	s.sleep(s.settleDelay)
	return s.StartAll()
}

// Status combines descriptor state with live OS metrics and a live health
// probe for the operator surface.
type Status struct {
	service.Snapshot
	Healthy bool                `json:"healthy"`
	Process *service.ProcessInfo `json:"process,omitempty"`
}

func (s *Supervisor) Status(name string) (Status, error) {
	d := s.reg.Get(name)
	if d == nil {
		return Status{}, fmt.Errorf("unknown service: %s", name)
	}
	st := Status{Snapshot: d.Snapshot()}
	if st.State == service.StateRunning || st.State == service.StateUnhealthy {
		st.Healthy = d.CheckHealth()
	}
	if info, ok := d.Info(); ok {
		st.Process = &info
	}
	return st, nil
}

func (s *Supervisor) StatusAll() []Status {
	out := make([]Status, 0, len(s.reg.Names()))
	for _, name := range s.reg.Names() {
		st, _ := s.Status(name)
		out = append(out, st)
	}
	return out
}

// MarkUnhealthy flags a threshold breach before the monitor runs its
// stop+start cycle: the descriptor moves to UNHEALTHY, the snapshot is
// persisted and the event reaches the history sinks. Keeping this here means
// the monitor never writes the state file or the sinks itself.
func (s *Supervisor) MarkUnhealthy(name string) {
	d := s.reg.Get(name)
	if d == nil {
		return
	}
	s.transition(d, service.StateUnhealthy, 0)
	s.persist()
	s.record(history.EventUnhealthy, d, "health check threshold reached")
}

// RecordRecovery appends the recover event once a monitor-triggered
// stop+start cycle brought the service back to RUNNING.
func (s *Supervisor) RecordRecovery(name string) {
	d := s.reg.Get(name)
	if d == nil {
		return
	}
	s.record(history.EventRecover, d, "")
}

// StartMonitoring lazily constructs the health monitor bound to the live
// registry and this supervisor, and starts its sweep goroutine.
func (s *Supervisor) StartMonitoring() {
	s.monMu.Lock()
	defer s.monMu.Unlock()
	if s.mon == nil {
		s.mon = monitor.New(s.reg, s, s.monOpts)
	}
	s.mon.Start()
}

// StopMonitoring joins the monitor goroutine with a bounded timeout.
func (s *Supervisor) StopMonitoring() {
	s.monMu.Lock()
	mon := s.mon
	s.monMu.Unlock()
	if mon != nil {
		mon.Stop(monitorStopTimeout)
	}
}

// Close stops monitoring and releases history sinks. Managed services keep
// running; they survive supervisor restarts by design.
func (s *Supervisor) Close() {
	s.StopMonitoring()
	for _, sink := range s.sinks {
		_ = sink.Close()
	}
}

// transition applies an atomic (state, pid) update and records the metric.
func (s *Supervisor) transition(d *service.Descriptor, to service.State, pid int) {
	from := d.State()
	d.Transition(to, pid)
	if from != to {
		metrics.RecordStateTransition(d.Name(), from.String(), to.String())
	}
}

// persist writes the full registry snapshot. Write errors are logged and
// ignored; a stale snapshot only degrades the next reattach.
func (s *Supervisor) persist() {
	if s.statePath == "" {
		return
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	snap := statefile.Snapshot{
		Servers:    make(map[string]statefile.Entry, len(s.reg.Names())),
		LastAction: time.Now().UTC(),
	}
	for _, d := range s.reg.All() {
		ds := d.Snapshot()
		e := statefile.Entry{Status: ds.State.String(), Port: ds.Port}
		if ds.PID > 0 {
			pid := ds.PID
			e.PID = &pid
		}
		if !ds.StartTime.IsZero() {
			t := ds.StartTime
			e.StartTime = &t
		}
		snap.Servers[ds.Name] = e
	}
	if err := statefile.Save(s.statePath, snap); err != nil {
		slog.Warn("state persist failed", "path", s.statePath, "error", err)
	}
}

// record appends a lifecycle event to all configured history sinks,
// best-effort.
func (s *Supervisor) record(t history.EventType, d *service.Descriptor, detail string) {
	if len(s.sinks) == 0 {
		return
	}
	ds := d.Snapshot()
	evt := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Name:       ds.Name,
		PID:        ds.PID,
		State:      ds.State.String(),
		Detail:     detail,
	}
	for _, sink := range s.sinks {
		if err := sink.Send(context.Background(), evt); err != nil {
			slog.Debug("history sink send failed", "sink_event", evt.Type, "error", err)
		}
	}
}

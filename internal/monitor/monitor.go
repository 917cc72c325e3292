// Package monitor implements the background health sweep: periodically probe
// every RUNNING descriptor and trigger a single stop+start recovery once a
// descriptor crosses the consecutive-failure threshold.
package monitor

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stackd-io/stackd/internal/metrics"
	"github.com/stackd-io/stackd/internal/service"
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultThreshold = 3
	DefaultGrace     = 5 * time.Second
)

// Recoverer is the supervisor surface the monitor drives recovery through.
// The monitor never mutates the state file or the history sinks itself; it
// only calls back. MarkUnhealthy flags the threshold breach before the
// stop+start cycle and RecordRecovery reports the cycle bringing the service
// back.
type Recoverer interface {
	Start(name string) error
	Stop(name string) error
	MarkUnhealthy(name string)
	RecordRecovery(name string)
}

// Options tune the sweep. Sleep is injectable so tests can force immediate
// termination; nil means an interruptible real sleep.
type Options struct {
	Interval  time.Duration
	Threshold int
	Grace     time.Duration
	Sleep     func(d time.Duration)
}

// Monitor runs a single background goroutine doing sweep-then-sleep.
type Monitor struct {
	reg       *service.Registry
	sup       Recoverer
	interval  time.Duration
	threshold int
	grace     time.Duration
	sleep     func(d time.Duration)

	monitoring atomic.Bool
	mu         sync.Mutex // guards stopCh/done across stop/start cycles
	stopCh     chan struct{}
	done       chan struct{}
}

func New(reg *service.Registry, sup Recoverer, opts Options) *Monitor {
	m := &Monitor{
		reg:       reg,
		sup:       sup,
		interval:  opts.Interval,
		threshold: opts.Threshold,
		grace:     opts.Grace,
		sleep:     opts.Sleep,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	if m.grace <= 0 {
		m.grace = DefaultGrace
	}
	if m.sleep == nil {
		m.sleep = m.interruptibleSleep
	}
	return m
}

// Start launches the sweep goroutine. Starting a running monitor is a no-op;
// a stopped monitor starts again with fresh channels.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.monitoring.Load() {
		return
	}
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.monitoring.Store(true)
	go m.loop(m.done)
}

// Stop clears the monitoring flag and joins the goroutine with a bounded
// timeout so a stuck probe cannot hang shutdown forever.
func (m *Monitor) Stop(timeout time.Duration) bool {
	m.mu.Lock()
	if !m.monitoring.Swap(false) {
		m.mu.Unlock()
		return true
	}
	stopCh, done := m.stopCh, m.done
	m.mu.Unlock()
	close(stopCh)
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		slog.Warn("health monitor did not stop within timeout")
		return false
	}
}

func (m *Monitor) loop(done chan struct{}) {
	defer close(done)
	for m.monitoring.Load() {
		m.SweepOnce()
		if !m.monitoring.Load() {
			return
		}
		m.sleep(m.interval)
	}
}

// SweepOnce evaluates health for all RUNNING descriptors. Exported so tests
// and the status surface can drive a sweep synchronously.
func (m *Monitor) SweepOnce() {
	for _, d := range m.reg.All() {
		if d.State() != service.StateRunning {
			continue
		}
		if d.CheckHealth() {
			if prev := d.ResetHealthFailures(); prev > 0 {
				slog.Info("service recovered before threshold", "service", d.Name(), "failures", prev)
			}
			continue
		}
		n := d.IncHealthFailures()
		metrics.IncHealthFailure(d.Name())
		slog.Warn("health check failed", "service", d.Name(), "consecutive", n)
		if n == m.threshold {
			m.recover(d)
		}
	}
}

// recover marks the descriptor UNHEALTHY and performs the single stop+start
// cycle for this threshold breach. A failed recovery leaves the descriptor in
// whatever state Start produced; the next breach only begins once the service
// is RUNNING and failing again.
func (m *Monitor) recover(d *service.Descriptor) {
	name := d.Name()
	slog.Error("health check threshold reached, recovering", "service", name, "threshold", m.threshold)
	m.sup.MarkUnhealthy(name)
	metrics.IncRecovery(name)
	if err := m.sup.Stop(name); err != nil {
		slog.Error("recovery stop failed", "service", name, "error", err)
	}
	m.sleep(m.grace)
	if err := m.sup.Start(name); err != nil {
		slog.Error("recovery start failed", "service", name, "error", err)
		return
	}
	m.sup.RecordRecovery(name)
}

// interruptibleSleep honors Stop during the interval wait.
func (m *Monitor) interruptibleSleep(d time.Duration) {
	m.mu.Lock()
	stop := m.stopCh
	m.mu.Unlock()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	}
}

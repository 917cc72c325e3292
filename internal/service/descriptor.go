package service

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

const (
	portProbeTimeout   = 1 * time.Second
	healthProbeTimeout = 5 * time.Second
)

// Config is the static description of one supervised service.
// Healthy decides which HTTP status codes count as healthy; when nil only
// 200 does. Dev-server style services (bundlers that 404 transiently while
// alive) supply a predicate accepting 404 as well.
type Config struct {
	Name           string
	Port           int
	Command        []string // argv; Command[0] is the executable
	WorkDir        string
	Env            []string // extra KEY=VALUE entries merged over the OS env
	HealthURL      string   // empty means pid-liveness only
	Healthy        func(status int) bool
	StartupTimeout time.Duration
}

// Descriptor couples a service Config with its mutable runtime state.
// All mutation of (state, pid) goes through Transition so the pair is never
// observed half-updated; see the monitor and supervisor for the two writers.
type Descriptor struct {
	cfg Config

	mu             sync.Mutex
	state          State
	pid            int
	handle         *ProcessHandle
	startTime      time.Time
	healthFailures int
}

// ProcessHandle is the descriptor's exclusive reference to a spawned OS
// process while it is alive. Wait must be called by exactly one goroutine.
type ProcessHandle struct {
	PID  int
	Wait func() error
}

func New(cfg Config) *Descriptor {
	if cfg.Healthy == nil {
		cfg.Healthy = func(status int) bool { return status == http.StatusOK }
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	return &Descriptor{cfg: cfg, state: StateStopped}
}

func (d *Descriptor) Name() string   { return d.cfg.Name }
func (d *Descriptor) Port() int      { return d.cfg.Port }
func (d *Descriptor) Config() Config { return d.cfg }

// Snapshot is a consistent copy of the descriptor's runtime state.
type Snapshot struct {
	Name           string    `json:"name"`
	State          State     `json:"state"`
	PID            int       `json:"pid"`
	Port           int       `json:"port"`
	StartTime      time.Time `json:"start_time"`
	HealthFailures int       `json:"health_failures"`
}

func (d *Descriptor) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		Name:           d.cfg.Name,
		State:          d.state,
		PID:            d.pid,
		Port:           d.cfg.Port,
		StartTime:      d.startTime,
		HealthFailures: d.healthFailures,
	}
}

func (d *Descriptor) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Descriptor) PID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pid
}

// Transition updates state and pid atomically. pid is ignored (kept) when the
// target state owns a process and pid is 0, and cleared when it does not.
func (d *Descriptor) Transition(state State, pid int) {
	d.mu.Lock()
	d.state = state
	if state.HasProcess() {
		if pid != 0 {
			d.pid = pid
		}
	} else {
		d.pid = 0
		d.handle = nil
	}
	d.mu.Unlock()
}

// Attach records a freshly spawned process and moves the descriptor to
// STARTING in one step.
func (d *Descriptor) Attach(h *ProcessHandle) {
	d.mu.Lock()
	d.state = StateStarting
	d.pid = h.PID
	d.handle = h
	d.startTime = time.Now()
	d.mu.Unlock()
}

// Reattach adopts an already-running PID recovered from persisted state.
// Liveness is the caller's responsibility; health is not re-verified here.
func (d *Descriptor) Reattach(pid int, startTime time.Time) {
	d.mu.Lock()
	d.state = StateRunning
	d.pid = pid
	d.handle = nil
	d.startTime = startTime
	d.mu.Unlock()
}

func (d *Descriptor) Handle() *ProcessHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle
}

func (d *Descriptor) StartTime() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startTime
}

// IncHealthFailures bumps the consecutive failure counter and returns the
// new value.
func (d *Descriptor) IncHealthFailures() int {
	d.mu.Lock()
	d.healthFailures++
	v := d.healthFailures
	d.mu.Unlock()
	return v
}

// ResetHealthFailures clears the counter and returns the previous value so
// callers can log a recovery transition.
func (d *Descriptor) ResetHealthFailures() int {
	d.mu.Lock()
	v := d.healthFailures
	d.healthFailures = 0
	d.mu.Unlock()
	return v
}

func (d *Descriptor) HealthFailures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.healthFailures
}

// IsPortInUse probes localhost:port with a short TCP connect. Any connection
// error (refused, timeout) means "not in use"; it never returns an error.
func (d *Descriptor) IsPortInUse() bool {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(d.cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, portProbeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// CheckHealth judges whether the service currently serves correctly. With a
// health URL configured it is an HTTP GET judged by the Healthy predicate;
// any network error is unhealthy. Without one it degrades to pid liveness.
func (d *Descriptor) CheckHealth() bool {
	if d.cfg.HealthURL == "" {
		return d.IsProcessAlive()
	}
	client := &http.Client{Timeout: healthProbeTimeout}
	resp, err := client.Get(d.cfg.HealthURL)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return d.cfg.Healthy(resp.StatusCode)
}

// IsProcessAlive is an OS-level pid-exists check, no HTTP involved.
func (d *Descriptor) IsProcessAlive() bool {
	pid := d.PID()
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}

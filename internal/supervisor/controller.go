package supervisor

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/stackd-io/stackd/internal/proc"
	"github.com/stackd-io/stackd/internal/service"
)

// Controller abstracts the OS-effecting primitives so the supervisor can be
// exercised in tests without spawning real processes. The production
// implementation delegates to the proc package.
type Controller interface {
	Spawn(opts proc.SpawnOptions) (*service.ProcessHandle, error)
	KillTree(pid int) bool
	CleanupPort(port int) bool
	Sweep(ports []int, markers []string) bool
	Alive(pid int) bool
}

type osController struct{}

// NewOSController returns the real Controller.
func NewOSController() Controller { return osController{} }

func (osController) Spawn(opts proc.SpawnOptions) (*service.ProcessHandle, error) {
	h, err := proc.Spawn(opts)
	if err != nil {
		return nil, err
	}
	// Reap in the background so an exited child never lingers as a zombie
	// and pid-liveness probes see it gone. The reaper owns Wait; the handle
	// returned to the descriptor carries the exit channel instead.
	exited := make(chan error, 1)
	go func() { exited <- h.Wait() }()
	return &service.ProcessHandle{PID: h.PID, Wait: func() error { return <-exited }}, nil
}

func (osController) KillTree(pid int) bool          { return proc.KillTree(pid) }
func (osController) CleanupPort(port int) bool      { return proc.CleanupPort(port) }
func (osController) Sweep(p []int, m []string) bool { return proc.Sweep(p, m) }

func (osController) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}

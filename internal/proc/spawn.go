// Package proc provides the stateless OS-level primitives the supervisor is
// built on: detached spawn, process-tree kill, port cleanup and the broader
// crash-recovery sweep. Primitives other than Spawn report success as a
// boolean so sweeps can make partial progress.
package proc

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// MarkerEnv is set in every spawned child's environment. The crash-recovery
// sweep only ever kills processes carrying this marker, so a sweep on a
// shared host cannot touch unrelated processes.
const MarkerEnv = "STACKD_MANAGED"

// SpawnOptions describes one detached process launch.
type SpawnOptions struct {
	Command []string // argv; Command[0] is the executable
	Dir     string
	Env     []string  // extra KEY=VALUE entries merged over the OS env
	Marker  string    // value for MarkerEnv; usually the service name
	Stdout  io.Writer // nil means discard
	Stderr  io.Writer
}

// Handle refers to a process created by Spawn. Wait reaps the child and must
// be called by exactly one goroutine.
type Handle struct {
	PID int
	cmd *exec.Cmd
}

func (h *Handle) Wait() error { return h.cmd.Wait() }

// Spawn starts a detached process in its own process group (new-process-group
// creation flag on Windows) so the whole tree can be killed as a unit without
// touching the supervisor. It is the only primitive in this package that
// returns an error: the OS refusing to create the process is not recoverable
// by sweeping.
func Spawn(opts SpawnOptions) (*Handle, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("spawn: empty command")
	}
	// #nosec G204 -- commands come from the operator's own config file
	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Env = append(cmd.Env, MarkerEnv+"="+opts.Marker)
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	}
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	}
	configureSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", opts.Command[0], err)
	}
	return &Handle{PID: cmd.Process.Pid, cmd: cmd}, nil
}

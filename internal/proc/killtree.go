package proc

import (
	"log/slog"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

const killGracePeriod = 5 * time.Second

// KillTree terminates pid and all of its descendants: deepest processes
// first (graceful terminate, wait up to the grace period, force-kill
// survivors), then the parent the same way. Children() only reports direct
// children, so the tree below pid is walked recursively. A pid that no
// longer exists is success, so the call is idempotent.
func KillTree(pid int) bool {
	if pid <= 0 {
		return true
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		// No such process.
		return true
	}
	for _, c := range descendants(p) {
		terminateAndReap(c)
	}
	terminateAndReap(p)
	return true
}

// descendants returns every process below p in deepest-first order. A failed
// enumeration of a subtree means its members are already gone or unreadable;
// that subtree is skipped.
func descendants(p *gopsproc.Process) []*gopsproc.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}
	var out []*gopsproc.Process
	for _, c := range children {
		out = append(out, descendants(c)...)
		out = append(out, c)
	}
	return out
}

// terminateAndReap sends a graceful terminate, waits for the process to
// vanish within the grace period, then force-kills. Errors from vanished
// processes are ignored.
func terminateAndReap(p *gopsproc.Process) {
	if err := p.Terminate(); err != nil {
		if gone, _ := pidGone(p.Pid); gone {
			return
		}
		slog.Debug("terminate failed, will force-kill", "pid", p.Pid, "error", err)
	}
	if waitGone(int(p.Pid), killGracePeriod) {
		return
	}
	_ = p.Kill()
	_ = waitGone(int(p.Pid), time.Second)
}

func pidGone(pid int32) (bool, error) {
	ok, err := gopsproc.PidExists(pid)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// waitGone polls until pid no longer exists or the deadline passes.
func waitGone(pid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if gone, err := pidGone(int32(pid)); err == nil && gone {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	gone, err := pidGone(int32(pid))
	return err == nil && gone
}

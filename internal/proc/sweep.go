package proc

import (
	"log/slog"
	"os"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// CleanupPort kills every process bound to the given TCP port. Vanished
// processes and permission-denied introspection on individual processes are
// skipped; the sweep fails only when the top-level process enumeration
// itself fails.
func CleanupPort(port int) bool {
	procs, err := gopsproc.Processes()
	if err != nil {
		slog.Error("port cleanup: process enumeration failed", "port", port, "error", err)
		return false
	}
	for _, p := range procs {
		conns, err := p.Connections()
		if err != nil {
			// Permission denied or the process vanished mid-sweep.
			continue
		}
		for _, c := range conns {
			if int(c.Laddr.Port) != port {
				continue
			}
			slog.Warn("killing process bound to managed port", "port", port, "pid", p.Pid)
			KillTree(int(p.Pid))
			break
		}
	}
	return true
}

// Sweep is the broad crash-recovery cleanup: per-port cleanup for every given
// port, plus a pass killing any surviving process whose MarkerEnv tag (set at
// spawn) names one of the given services. It is deliberately fuzzier than
// CleanupPort and is used for full-stop, crash-recovery and
// occupied-port-before-start paths. Matching by the marker rather than
// command-line substrings keeps the sweep scoped to processes this supervisor
// (or a previous incarnation of it) actually spawned.
func Sweep(ports []int, markers []string) bool {
	ok := true
	for _, port := range ports {
		if !CleanupPort(port) {
			ok = false
		}
	}
	if !sweepMarked(markers) {
		ok = false
	}
	return ok
}

// sweepMarked kills processes whose MarkerEnv value is in markers.
func sweepMarked(markers []string) bool {
	if len(markers) == 0 {
		return true
	}
	procs, err := gopsproc.Processes()
	if err != nil {
		slog.Error("marker sweep: process enumeration failed", "error", err)
		return false
	}
	wanted := make(map[string]bool, len(markers))
	for _, m := range markers {
		wanted[m] = true
	}
	self := int32(os.Getpid())
	prefix := MarkerEnv + "="
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		env, err := p.Environ()
		if err != nil {
			continue
		}
		for _, kv := range env {
			if strings.HasPrefix(kv, prefix) && wanted[strings.TrimPrefix(kv, prefix)] {
				slog.Warn("killing marked stray process", "pid", p.Pid, "marker", strings.TrimPrefix(kv, prefix))
				KillTree(int(p.Pid))
				break
			}
		}
	}
	return true
}

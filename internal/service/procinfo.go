package service

import (
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is a best-effort snapshot of OS-level metrics for the
// descriptor's process, in the shape the status report serves.
type ProcessInfo struct {
	PID        int       `json:"pid"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	StartedAt  time.Time `json:"started_at"`
}

// Info returns OS metrics for the current pid. Missing pid or an
// inaccessible process yields (zero, false); individual metric failures are
// tolerated field by field. It never panics or returns an error.
func (d *Descriptor) Info() (ProcessInfo, bool) {
	pid := d.PID()
	if pid <= 0 {
		return ProcessInfo{}, false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return ProcessInfo{}, false
	}
	info := ProcessInfo{PID: pid}
	if name, err := p.Name(); err == nil {
		info.Name = name
	}
	if sts, err := p.Status(); err == nil && len(sts) > 0 {
		info.Status = sts[0]
	}
	if cpu, err := p.CPUPercent(); err == nil {
		info.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		info.MemoryMB = float64(mem.RSS) / 1024 / 1024
	}
	if n, err := p.NumThreads(); err == nil {
		info.NumThreads = n
	}
	if ms, err := p.CreateTime(); err == nil && ms > 0 {
		info.StartedAt = time.UnixMilli(ms)
	}
	return info, true
}

package client

import "time"

// ServiceStatus mirrors the daemon's status payload for one service.
type ServiceStatus struct {
	Name      string         `json:"name"`
	State     string         `json:"state"`
	PID       int            `json:"pid,omitempty"`
	Port      int            `json:"port"`
	StartTime time.Time      `json:"start_time,omitzero"`
	Healthy   bool           `json:"healthy"`
	Process   *ProcessDetail `json:"process,omitempty"`
}

// ProcessDetail carries the live OS metrics attached to a running service.
type ProcessDetail struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	StartedAt  time.Time `json:"started_at,omitzero"`
}

// ErrorResponse is the daemon's JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

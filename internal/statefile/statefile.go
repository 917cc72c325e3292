// Package statefile persists the supervisor's last known view of its
// services so a restarted supervisor can reattach to still-alive processes.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is the persisted slice of one service's runtime state.
type Entry struct {
	PID       *int       `json:"pid"`
	Status    string     `json:"status"`
	Port      int        `json:"port"`
	StartTime *time.Time `json:"start_time"`
}

// Snapshot is the on-disk document, written after every mutating operation
// and read once at supervisor construction.
type Snapshot struct {
	Servers    map[string]Entry `json:"servers"`
	LastAction time.Time        `json:"last_action"`
}

// Save writes the snapshot atomically (temp file + rename). The caller logs
// and ignores errors; a lost snapshot only costs reattachment on the next
// supervisor start.
func Save(path string, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("statefile: %w", err)
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("statefile: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("statefile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("statefile: %w", err)
	}
	return nil
}

// Load reads a snapshot. A missing or corrupt file returns an error the
// caller treats as "nothing to recover".
func Load(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("statefile: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("statefile: %w", err)
	}
	return snap, nil
}

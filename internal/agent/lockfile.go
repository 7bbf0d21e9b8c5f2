package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// LockfileName is written to the temp dir while an agent runs so a restarted
// server can find and stop a process it no longer owns.
const LockfileName = "generation.lock"

type lockfile struct {
	PID         int    `json:"pid"`
	ComponentID string `json:"component_id"`
	StartTime   int64  `json:"start_time"`
}

func writeLockfile(path string, lf lockfile) error {
	data, err := json.Marshal(lf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// CleanupStale stops an agent left running by a previous server and removes
// its lockfile. It reports the pid it signalled, or zero.
func (r *Runner) CleanupStale() (int, error) {
	path := r.lockPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read lockfile: %w", err)
	}
	defer os.Remove(path)

	var lf lockfile
	if err := json.Unmarshal(data, &lf); err != nil || lf.PID <= 0 {
		r.logger.Warn("discarding unreadable lockfile", "path", path)
		return 0, nil
	}

	proc, err := os.FindProcess(lf.PID)
	if err != nil {
		return 0, nil
	}
	// Signal 0 probes for a live process.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, nil
	}

	r.logger.Warn("killing orphaned agent", "pid", lf.PID, "component", lf.ComponentID,
		"started", time.UnixMilli(lf.StartTime).UTC().Format(time.RFC3339))
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return 0, nil
	}
	r.opts.Scheduler.AfterFunc(r.opts.KillGrace, func() { _ = proc.Kill() })
	return lf.PID, nil
}

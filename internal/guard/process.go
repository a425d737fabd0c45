package guard

import (
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is the slice of the process table the guard needs.
type ProcessInfo struct {
	PID     int32
	Name    string
	Started time.Time
}

// SnapshotFunc returns the current process table.
type SnapshotFunc func() ([]ProcessInfo, error)

// processSnapshot reads the live process table via gopsutil. Processes
// that vanish mid-scan are skipped.
func processSnapshot() ([]ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		createdMS, err := p.CreateTime()
		if err != nil {
			continue
		}
		infos = append(infos, ProcessInfo{
			PID:     p.Pid,
			Name:    name,
			Started: time.UnixMilli(createdMS),
		})
	}
	return infos, nil
}

// Guard detects a concurrently running instance of the same operation.
// It must run before any other I/O: two transactions racing on the same
// data directory would destroy it.
type Guard struct {
	Snapshot SnapshotFunc
}

// Check reports whether another process with the given executable name is
// alive, and when it started, for the operator report.
func (g Guard) Check(selfPID int32, name string) (bool, time.Time, error) {
	snapshot := g.Snapshot
	if snapshot == nil {
		snapshot = processSnapshot
	}

	infos, err := snapshot()
	if err != nil {
		return false, time.Time{}, err
	}

	for _, info := range infos {
		if info.PID != selfPID && info.Name == name {
			return true, info.Started, nil
		}
	}
	return false, time.Time{}, nil
}

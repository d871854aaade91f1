// Package records defines the two line-delimited record shapes written by the
// watcher and consumed by the offline reconstruction tools.
package records

// LifetimeRecord summarizes one terminated process. Times are Unix seconds.
// ExitTime is the wall-clock time of the first query that failed to reach the
// process, so it is late by at most one poll interval.
type LifetimeRecord struct {
	PID          int32   `json:"pid"`
	PPID         int32   `json:"ppid"`
	CreationTime float64 `json:"creation_time"`
	ExitTime     float64 `json:"exit_time"`
	LifeTime     float64 `json:"life_time"`
	Root         bool    `json:"root"`
}

// NewLifetimeRecord fills LifeTime from the two timestamps.
func NewLifetimeRecord(pid, ppid int32, created, exited float64, root bool) LifetimeRecord {
	return LifetimeRecord{
		PID:          pid,
		PPID:         ppid,
		CreationTime: created,
		ExitTime:     exited,
		LifeTime:     exited - created,
		Root:         root,
	}
}

// CPUTimes holds cumulative CPU seconds.
type CPUTimes struct {
	User   float64 `json:"user"`
	System float64 `json:"system"`
}

// Total returns user + system seconds.
func (c CPUTimes) Total() float64 { return c.User + c.System }

// Memory holds resident and virtual sizes in bytes.
type Memory struct {
	RSS uint64 `json:"rss"`
	VMS uint64 `json:"vms"`
}

// UsageRecord is one resource sample of one live process.
type UsageRecord struct {
	PID        int32    `json:"pid"`
	PPID       int32    `json:"ppid"`
	CPUTimes   CPUTimes `json:"cpu_times"`
	Memory     Memory   `json:"memory"`
	NumFDs     int32    `json:"num_fds"`
	NumThreads int32    `json:"num_threads"`
	Time       float64  `json:"time"`
}

// Package utilization turns the cumulative CPU counters of the usage log into
// per-process utilization series.
package utilization

import (
	"errors"
	"fmt"
	"math"

	"ProcGraph/pkg/records"
)

// ErrTimeDelta means two consecutive samples of one process are not strictly
// increasing in time.
var ErrTimeDelta = errors.New("non-positive time delta between samples")

// Point is one derived sample. Utilization is a fraction of one CPU, so 0.5
// is 50% and a multithreaded process can exceed 1.
type Point struct {
	Time        float64
	Offset      float64 // seconds since Result.Start
	Utilization float64
	RSS         uint64
	VMS         uint64
	NumFDs      int32
	NumThreads  int32
}

// Series is the ordered derivation for one pid. It has one point per sample;
// the first is always 0 since it has no baseline.
type Series struct {
	PID    int32
	PPID   int32
	Points []Point
}

// Result holds every series in first-seen pid order.
type Result struct {
	// Start is the earliest first-sample time across all pids.
	Start  float64
	Series []Series
}

// Derive groups samples by pid in arrival order and differentiates each
// group's CPU time.
func Derive(recs []records.UsageRecord) (*Result, error) {
	index := make(map[int32]int)
	var groups [][]records.UsageRecord
	for _, r := range recs {
		i, ok := index[r.PID]
		if !ok {
			i = len(groups)
			index[r.PID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}

	res := &Result{Start: math.Inf(1), Series: make([]Series, 0, len(groups))}
	for _, g := range groups {
		res.Start = math.Min(res.Start, g[0].Time)
	}
	if len(groups) == 0 {
		res.Start = 0
	}

	for _, g := range groups {
		s := Series{PID: g[0].PID, PPID: g[0].PPID, Points: make([]Point, len(g))}
		for i, cur := range g {
			u := 0.0
			if i > 0 {
				prev := g[i-1]
				dt := cur.Time - prev.Time
				if !(dt > 0) {
					return nil, fmt.Errorf("%w: pid %d sample %d: %v -> %v",
						ErrTimeDelta, cur.PID, i, prev.Time, cur.Time)
				}
				u = (cur.CPUTimes.Total() - prev.CPUTimes.Total()) / dt
			}
			s.Points[i] = Point{
				Time:        cur.Time,
				Offset:      cur.Time - res.Start,
				Utilization: u,
				RSS:         cur.Memory.RSS,
				VMS:         cur.Memory.VMS,
				NumFDs:      cur.NumFDs,
				NumThreads:  cur.NumThreads,
			}
		}
		res.Series = append(res.Series, s)
	}
	return res, nil
}

// Row is one flattened point for tabular export.
type Row struct {
	PID         int32   `json:"pid" parquet:"pid"`
	PPID        int32   `json:"ppid" parquet:"ppid"`
	Time        float64 `json:"time" parquet:"time"`
	Offset      float64 `json:"offset" parquet:"offset"`
	Utilization float64 `json:"utilization" parquet:"utilization"`
	RSS         uint64  `json:"rss" parquet:"rss"`
	VMS         uint64  `json:"vms" parquet:"vms"`
	NumFDs      int32   `json:"num_fds" parquet:"num_fds"`
	NumThreads  int32   `json:"num_threads" parquet:"num_threads"`
}

// Rows flattens every series, series by series.
func (r *Result) Rows() []Row {
	var n int
	for _, s := range r.Series {
		n += len(s.Points)
	}
	rows := make([]Row, 0, n)
	for _, s := range r.Series {
		for _, p := range s.Points {
			rows = append(rows, Row{
				PID:         s.PID,
				PPID:        s.PPID,
				Time:        p.Time,
				Offset:      p.Offset,
				Utilization: p.Utilization,
				RSS:         p.RSS,
				VMS:         p.VMS,
				NumFDs:      p.NumFDs,
				NumThreads:  p.NumThreads,
			})
		}
	}
	return rows
}

// Peak returns the highest utilization seen in s.
func (s Series) Peak() float64 {
	var peak float64
	for _, p := range s.Points {
		peak = math.Max(peak, p.Utilization)
	}
	return peak
}

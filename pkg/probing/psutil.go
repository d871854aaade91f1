package probing

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// PsutilSource answers queries through gopsutil.
type PsutilSource struct {
	mu    sync.Mutex
	procs map[int32]*process.Process
}

// NewPsutilSource creates an empty source.
func NewPsutilSource() *PsutilSource {
	return &PsutilSource{procs: make(map[int32]*process.Process)}
}

func (s *PsutilSource) Open(ctx context.Context, pid int32) Query[Handle] {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if isGone(err) {
			return notFound[Handle]()
		}
		return failed[Handle](err)
	}
	// gopsutil caches the creation time on p, which IsRunning later compares
	// against a fresh read to catch pid reuse.
	ms, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return queryFailure[Handle](ctx, p, err)
	}
	ppid, err := p.PpidWithContext(ctx)
	if err != nil {
		return queryFailure[Handle](ctx, p, err)
	}

	s.mu.Lock()
	s.procs[pid] = p
	s.mu.Unlock()

	return found(Handle{PID: pid, PPID: ppid, Created: float64(ms) / 1000})
}

func (s *PsutilSource) Children(ctx context.Context, h Handle) Query[[]int32] {
	p, q, err := s.live(ctx, h)
	if q != Found {
		return Query[[]int32]{Outcome: q, Err: err}
	}
	// Process.Children shells out to pgrep, which exits 1 for a leaf, and
	// fails the whole call when any listed child has already exited. Only
	// the parent's own liveness decides the outcome here.
	pids, err := childPIDs(ctx, h.PID)
	if err != nil {
		return queryFailure[[]int32](ctx, p, err)
	}
	if running, rerr := p.IsRunningWithContext(ctx); rerr == nil && !running {
		return notFound[[]int32]()
	}
	return found(pids)
}

// scanChildPIDs asks every process for its parent. Processes that exit
// during the scan are skipped.
func scanChildPIDs(ctx context.Context, ppid int32) ([]int32, error) {
	all, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, err
	}
	pids := []int32{}
	for _, pid := range all {
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			continue
		}
		parent, err := p.PpidWithContext(ctx)
		if err != nil || parent != ppid {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

func (s *PsutilSource) Snapshot(ctx context.Context, h Handle) Query[Counters] {
	p, q, err := s.live(ctx, h)
	if q != Found {
		return Query[Counters]{Outcome: q, Err: err}
	}

	var c Counters
	times, err := p.TimesWithContext(ctx)
	if err != nil {
		return queryFailure[Counters](ctx, p, err)
	}
	c.CPUUser, c.CPUSystem = times.User, times.System

	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return queryFailure[Counters](ctx, p, err)
	}
	c.RSS, c.VMS = mem.RSS, mem.VMS

	if c.NumFDs, err = p.NumFDsWithContext(ctx); err != nil {
		return queryFailure[Counters](ctx, p, err)
	}
	if c.NumThreads, err = p.NumThreadsWithContext(ctx); err != nil {
		return queryFailure[Counters](ctx, p, err)
	}
	return found(c)
}

func (s *PsutilSource) Release(h Handle) {
	s.mu.Lock()
	delete(s.procs, h.PID)
	s.mu.Unlock()
}

// live returns the cached process for h after confirming the same incarnation
// still exists.
func (s *PsutilSource) live(ctx context.Context, h Handle) (*process.Process, Outcome, error) {
	s.mu.Lock()
	p, ok := s.procs[h.PID]
	s.mu.Unlock()
	if !ok {
		q := s.Open(ctx, h.PID)
		if q.Outcome != Found {
			return nil, q.Outcome, q.Err
		}
		if q.Value.Created != h.Created {
			return nil, NotFound, nil
		}
		s.mu.Lock()
		p = s.procs[h.PID]
		s.mu.Unlock()
	}
	running, err := p.IsRunningWithContext(ctx)
	switch {
	case err != nil && isGone(err):
		return nil, NotFound, nil
	case err != nil:
		return nil, Failed, err
	case !running:
		return nil, NotFound, nil
	}
	return p, Found, nil
}

// queryFailure decides whether err means the process vanished mid-query.
func queryFailure[T any](ctx context.Context, p *process.Process, err error) Query[T] {
	if isGone(err) {
		return notFound[T]()
	}
	running, rerr := p.IsRunningWithContext(ctx)
	if (rerr == nil && !running) || (rerr != nil && isGone(rerr)) {
		return notFound[T]()
	}
	return failed[T](err)
}

func isGone(err error) bool {
	return errors.Is(err, process.ErrorProcessNotRunning) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ESRCH)
}

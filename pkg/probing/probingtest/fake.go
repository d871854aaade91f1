// Package probingtest provides an in-memory process table implementing
// probing.Source.
package probingtest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"ProcGraph/pkg/probing"
)

// ReaperPID is the pid orphans are reparented to, like init.
const ReaperPID int32 = 1

// ErrDenied is returned for processes marked with Deny.
var ErrDenied = errors.New("permission denied")

// Process is one fake OS process.
type Process struct {
	PID      int32
	PPID     int32
	Created  float64
	Counters probing.Counters
	denied   bool
}

// FakeSource is a mutable process table. The zero value is not usable; call
// NewFakeSource.
type FakeSource struct {
	mu       sync.Mutex
	procs    map[int32]*Process
	released map[int32]int
	queries  map[int32]int
}

// NewFakeSource creates an empty table.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		procs:    make(map[int32]*Process),
		released: make(map[int32]int),
		queries:  make(map[int32]int),
	}
}

// Spawn adds a live process. Spawning an existing pid replaces it, which
// models pid reuse.
func (f *FakeSource) Spawn(pid, ppid int32, created float64) *Process {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &Process{PID: pid, PPID: ppid, Created: created}
	f.procs[pid] = p
	return p
}

// Exit removes pid and reparents its children to ReaperPID.
func (f *FakeSource) Exit(pid int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.procs, pid)
	for _, p := range f.procs {
		if p.PPID == pid {
			p.PPID = ReaperPID
		}
	}
}

// SetCounters replaces the counters reported for pid.
func (f *FakeSource) SetCounters(pid int32, c probing.Counters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.procs[pid]; ok {
		p.Counters = c
	}
}

// Deny makes every query against pid fail with ErrDenied.
func (f *FakeSource) Deny(pid int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.procs[pid]; ok {
		p.denied = true
	}
}

// Released reports how many times pid was released.
func (f *FakeSource) Released(pid int32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released[pid]
}

// Queries reports how many Children/Snapshot calls targeted pid.
func (f *FakeSource) Queries(pid int32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[pid]
}

func (f *FakeSource) lookup(h probing.Handle) (*Process, probing.Outcome) {
	f.queries[h.PID]++
	p, ok := f.procs[h.PID]
	if !ok || p.Created != h.Created {
		return nil, probing.NotFound
	}
	if p.denied {
		return nil, probing.Failed
	}
	return p, probing.Found
}

func (f *FakeSource) Open(_ context.Context, pid int32) probing.Query[probing.Handle] {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[pid]
	if !ok {
		return probing.Query[probing.Handle]{Outcome: probing.NotFound}
	}
	if p.denied {
		return probing.Query[probing.Handle]{Outcome: probing.Failed, Err: ErrDenied}
	}
	return probing.Query[probing.Handle]{
		Value:   probing.Handle{PID: p.PID, PPID: p.PPID, Created: p.Created},
		Outcome: probing.Found,
	}
}

func (f *FakeSource) Children(_ context.Context, h probing.Handle) probing.Query[[]int32] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, o := f.lookup(h); o != probing.Found {
		return probing.Query[[]int32]{Outcome: o, Err: deniedErr(o)}
	}
	var kids []int32
	for _, p := range f.procs {
		if p.PPID == h.PID {
			kids = append(kids, p.PID)
		}
	}
	sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
	return probing.Query[[]int32]{Value: kids, Outcome: probing.Found}
}

func (f *FakeSource) Snapshot(_ context.Context, h probing.Handle) probing.Query[probing.Counters] {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, o := f.lookup(h)
	if o != probing.Found {
		return probing.Query[probing.Counters]{Outcome: o, Err: deniedErr(o)}
	}
	return probing.Query[probing.Counters]{Value: p.Counters, Outcome: probing.Found}
}

func (f *FakeSource) Release(h probing.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released[h.PID]++
}

func deniedErr(o probing.Outcome) error {
	if o == probing.Failed {
		return ErrDenied
	}
	return nil
}

// Package watching follows a process and every descendant it forks by
// polling. Each cycle discovers new children through the child lists of the
// processes already being watched, samples every member, and retires members
// whose queries no longer reach them.
package watching

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"ProcGraph/pkg/probing"
	"ProcGraph/pkg/records"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultInterval      = 100 * time.Millisecond
	DefaultProgressEvery = 100
)

var (
	ErrRootNotFound = errors.New("root process not found")
	ErrInterval     = errors.New("poll interval must be positive")
	ErrSelfRoot     = errors.New("watcher cannot watch itself")
)

// Sink receives the watcher's records in emission order.
type Sink interface {
	WriteLifetime(records.LifetimeRecord) error
	WriteUsage(records.UsageRecord) error
}

// Options tunes a Watcher. Zero fields take defaults.
type Options struct {
	Interval time.Duration
	// Exclude lists pids never admitted to the working set besides the
	// watcher's own, e.g. the launcher of a detached watcher.
	Exclude       []int32
	Clock         clock.Clock
	Logger        *zap.Logger
	ProgressEvery int
}

// Stats counts what a watcher has done so far.
type Stats struct {
	Cycles     int
	Discovered int
	Skipped    int
	Exited     int
	Samples    int
}

// Watcher owns the working set and the original-parent table. It is driven
// by a single goroutine; none of its methods are safe for concurrent use.
type Watcher struct {
	source   probing.Source
	sink     Sink
	clock    clock.Clock
	log      *zap.Logger
	interval time.Duration
	progress int

	runID   string
	rootPID int32
	selfPID int32
	exclude map[int32]struct{}

	working map[int32]probing.Handle
	parents map[int32]int32
	stats   Stats
}

// New opens the root and seeds the working set with it. The root's OS parent
// is recorded so its lifetime record carries a real ppid.
func New(ctx context.Context, source probing.Source, sink Sink, rootPID int32, opts Options) (*Watcher, error) {
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInterval, opts.Interval)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}

	w := &Watcher{
		source:   source,
		sink:     sink,
		clock:    opts.Clock,
		interval: opts.Interval,
		progress: opts.ProgressEvery,
		runID:    uuid.NewString(),
		rootPID:  rootPID,
		selfPID:  int32(os.Getpid()),
		exclude:  make(map[int32]struct{}, len(opts.Exclude)),
		working:  make(map[int32]probing.Handle),
		parents:  make(map[int32]int32),
	}
	for _, pid := range opts.Exclude {
		w.exclude[pid] = struct{}{}
	}
	w.log = opts.Logger.With(zap.String("run_id", w.runID), zap.Int32("root", rootPID))

	if w.excluded(rootPID) {
		return nil, fmt.Errorf("%w: pid %d", ErrSelfRoot, rootPID)
	}

	q := source.Open(ctx, rootPID)
	if !q.Alive() {
		if q.Err != nil {
			return nil, fmt.Errorf("%w: pid %d: %v", ErrRootNotFound, rootPID, q.Err)
		}
		return nil, fmt.Errorf("%w: pid %d", ErrRootNotFound, rootPID)
	}
	w.working[rootPID] = q.Value
	w.parents[rootPID] = q.Value.PPID
	return w, nil
}

// excluded is the self-monitoring guard. It is checked before any set
// membership test so the watcher never admits itself.
func (w *Watcher) excluded(pid int32) bool {
	if pid == w.selfPID {
		return true
	}
	_, ok := w.exclude[pid]
	return ok
}

func (w *Watcher) now() float64 {
	return float64(w.clock.Now().UnixNano()) / 1e9
}

// members copies the working set in pid order so a pass never iterates the
// map it is about to change.
func (w *Watcher) members() []probing.Handle {
	hs := make([]probing.Handle, 0, len(w.working))
	for _, h := range w.working {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].PID < hs[j].PID })
	return hs
}

type departure struct {
	handle  probing.Handle
	outcome probing.Outcome
	err     error
}

type arrival struct {
	handle probing.Handle
	parent int32
}

// Cycle runs one discovery pass followed by one sampling pass, so a child
// found in this cycle is sampled in this cycle too. Errors are sink
// failures; process disappearance is never an error.
func (w *Watcher) Cycle(ctx context.Context) error {
	w.stats.Cycles++
	if err := w.discover(ctx); err != nil {
		return err
	}
	return w.sample(ctx)
}

func (w *Watcher) discover(ctx context.Context) error {
	var (
		arrivals   []arrival
		departures []departure
		pending    = make(map[int32]struct{})
	)

	for _, h := range w.members() {
		q := w.source.Children(ctx, h)
		if !q.Alive() {
			departures = append(departures, departure{h, q.Outcome, q.Err})
			continue
		}
		for _, pid := range q.Value {
			if w.excluded(pid) {
				continue
			}
			if _, ok := w.working[pid]; ok {
				continue
			}
			if _, ok := pending[pid]; ok {
				continue
			}
			oq := w.source.Open(ctx, pid)
			if !oq.Alive() {
				// Gone before it could be opened: never observed, never recorded.
				w.stats.Skipped++
				w.log.Debug("child vanished before discovery",
					zap.Int32("pid", pid), zap.Int32("parent", h.PID), zap.Stringer("outcome", oq.Outcome))
				continue
			}
			pending[pid] = struct{}{}
			arrivals = append(arrivals, arrival{oq.Value, h.PID})
		}
	}

	if err := w.retire(departures); err != nil {
		return err
	}
	for _, a := range arrivals {
		w.working[a.handle.PID] = a.handle
		if _, ok := w.parents[a.handle.PID]; !ok {
			w.parents[a.handle.PID] = a.parent
		}
		w.stats.Discovered++
		w.log.Debug("discovered process",
			zap.Int32("pid", a.handle.PID), zap.Int32("parent", a.parent), zap.Float64("created", a.handle.Created))
	}
	return nil
}

func (w *Watcher) sample(ctx context.Context) error {
	var departures []departure

	for _, h := range w.members() {
		q := w.source.Snapshot(ctx, h)
		if !q.Alive() {
			departures = append(departures, departure{h, q.Outcome, q.Err})
			continue
		}
		c := q.Value
		rec := records.UsageRecord{
			PID:        h.PID,
			PPID:       w.parents[h.PID],
			CPUTimes:   records.CPUTimes{User: c.CPUUser, System: c.CPUSystem},
			Memory:     records.Memory{RSS: c.RSS, VMS: c.VMS},
			NumFDs:     c.NumFDs,
			NumThreads: c.NumThreads,
			Time:       w.now(),
		}
		if err := w.sink.WriteUsage(rec); err != nil {
			return fmt.Errorf("write usage record for pid %d: %w", h.PID, err)
		}
		w.stats.Samples++
	}

	return w.retire(departures)
}

// retire emits one lifetime record per departed process and drops it from
// the working set. The exit time is the time the failure was observed.
func (w *Watcher) retire(departures []departure) error {
	for _, d := range departures {
		h := d.handle
		if _, ok := w.working[h.PID]; !ok {
			continue
		}
		switch d.outcome {
		case probing.Failed:
			w.log.Warn("query failed, treating process as exited", zap.Int32("pid", h.PID), zap.Error(d.err))
		default:
			w.log.Debug("process exited", zap.Int32("pid", h.PID))
		}

		rec := records.NewLifetimeRecord(h.PID, w.parents[h.PID], h.Created, w.now(), h.PID == w.rootPID)
		if err := w.sink.WriteLifetime(rec); err != nil {
			return fmt.Errorf("write lifetime record for pid %d: %w", h.PID, err)
		}
		delete(w.working, h.PID)
		delete(w.parents, h.PID)
		w.source.Release(h)
		w.stats.Exited++
	}
	return nil
}

// Run cycles until the working set is empty or ctx is done. The only
// suspension point is the sleep between cycles.
func (w *Watcher) Run(ctx context.Context) error {
	start := w.clock.Now()
	w.log.Info("watcher started", zap.Duration("interval", w.interval))

	for {
		if err := w.Cycle(ctx); err != nil {
			return err
		}
		if len(w.working) == 0 {
			w.log.Info("watched tree exited",
				zap.Duration("elapsed", w.clock.Since(start)),
				zap.Int("cycles", w.stats.Cycles),
				zap.Int("discovered", w.stats.Discovered),
				zap.Int("exited", w.stats.Exited),
				zap.Int("skipped", w.stats.Skipped),
				zap.Int("samples", w.stats.Samples))
			return nil
		}
		if w.stats.Cycles%w.progress == 0 {
			w.log.Info("progress", zap.Int("cycles", w.stats.Cycles), zap.Int("members", len(w.working)))
		}

		select {
		case <-ctx.Done():
			w.log.Info("watcher stopped", zap.Int("members", len(w.working)), zap.Error(ctx.Err()))
			return ctx.Err()
		case <-w.clock.After(w.interval):
		}
	}
}

// Members returns the pids currently in the working set, ascending.
func (w *Watcher) Members() []int32 {
	pids := make([]int32, 0, len(w.working))
	for _, h := range w.members() {
		pids = append(pids, h.PID)
	}
	return pids
}

// RecordedParent returns the parent pid captured when pid was discovered.
func (w *Watcher) RecordedParent(pid int32) (int32, bool) {
	ppid, ok := w.parents[pid]
	return ppid, ok
}

func (w *Watcher) Stats() Stats { return w.stats }

func (w *Watcher) RunID() string { return w.runID }

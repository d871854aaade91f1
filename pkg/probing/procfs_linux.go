//go:build linux

package probing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

const (
	jiffiesPerSecond = 100
	procDir          = "/proc"
)

// ProcfsSource answers queries by reading /proc directly. It is cheaper than
// PsutilSource on large hosts since children come from the per-task children
// files rather than a scan of every pid.
type ProcfsSource struct {
	root     string
	fs       procfs.FS
	bootTime float64
	pageSize uint64
}

// NewProcfsSource reads the boot time needed to turn start ticks into Unix time.
func NewProcfsSource() (*ProcfsSource, error) {
	return newProcfsSource(procDir)
}

func newProcfsSource(root string) (*ProcfsSource, error) {
	pfs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", root, err)
	}
	kstat, err := pfs.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to read boot time: %w", err)
	}
	if kstat.BootTime == 0 {
		return nil, fmt.Errorf("no btime in %s/stat", root)
	}
	return &ProcfsSource{
		root:     root,
		fs:       pfs,
		bootTime: float64(kstat.BootTime),
		pageSize: uint64(os.Getpagesize()),
	}, nil
}

// procStat holds the /proc/[pid]/stat fields we use.
type procStat struct {
	State      byte
	PPID       int32
	UTime      int64 // jiffies
	STime      int64 // jiffies
	NumThreads int32
	StartTime  int64 // jiffies since boot
	VSize      uint64
	RSSPages   uint64
}

// parseStat extracts fields from /proc/[pid]/stat. The command name may
// contain spaces and parentheses, so fields are counted from the last ')'.
func parseStat(data []byte) (procStat, error) {
	var st procStat
	start := bytes.IndexByte(data, '(')
	end := bytes.LastIndexByte(data, ')')
	if start == -1 || end == -1 || end <= start || end+2 > len(data) {
		return st, fmt.Errorf("malformed stat line")
	}
	fields := bytes.Fields(data[end+2:])
	if len(fields) < 22 { // need up to field 24 (index 21 after comm)
		return st, fmt.Errorf("short stat line: %d fields", len(fields))
	}
	st.State = fields[0][0]
	st.PPID = int32(toInt64(fields[1]))
	st.UTime = toInt64(fields[11])
	st.STime = toInt64(fields[12])
	st.NumThreads = int32(toInt64(fields[17]))
	st.StartTime = toInt64(fields[19])
	st.VSize = uint64(toInt64(fields[20]))
	st.RSSPages = uint64(toInt64(fields[21]))
	return st, nil
}

func toInt64(b []byte) int64 {
	v, _ := strconv.ParseInt(string(b), 10, 64)
	return v
}

func (s *ProcfsSource) stat(pid int32) (procStat, error) {
	data, err := readProcFile(filepath.Join(s.root, strconv.Itoa(int(pid)), "stat"))
	if err != nil {
		return procStat{}, err
	}
	return parseStat(data)
}

func (s *ProcfsSource) created(st procStat) float64 {
	return s.bootTime + float64(st.StartTime)/jiffiesPerSecond
}

func (s *ProcfsSource) Open(_ context.Context, pid int32) Query[Handle] {
	st, err := s.stat(pid)
	if err != nil {
		return procfsFailure[Handle](err)
	}
	return found(Handle{PID: pid, PPID: st.PPID, Created: s.created(st)})
}

// check re-reads stat and confirms it is still the incarnation h names.
func (s *ProcfsSource) check(h Handle) (procStat, Outcome, error) {
	st, err := s.stat(h.PID)
	if err != nil {
		q := procfsFailure[struct{}](err)
		return st, q.Outcome, q.Err
	}
	if math.Abs(s.created(st)-h.Created) > 1.0/jiffiesPerSecond {
		return st, NotFound, nil
	}
	return st, Found, nil
}

func (s *ProcfsSource) Children(_ context.Context, h Handle) Query[[]int32] {
	if _, q, err := s.check(h); q != Found {
		return Query[[]int32]{Outcome: q, Err: err}
	}

	pids, ok, err := taskChildren(s.root, h.PID)
	if err != nil {
		return procfsFailure[[]int32](err)
	}
	if !ok {
		return s.scanChildren(h)
	}
	return found(pids)
}

// taskChildren lists the children of pid from the children file of each of
// its threads. ok is false when the kernel was built without
// CONFIG_PROC_CHILDREN. A missing task directory means pid itself is gone.
func taskChildren(root string, pid int32) (pids []int32, ok bool, err error) {
	taskDir := filepath.Join(root, strconv.Itoa(int(pid)), "task")
	tasks, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, false, err
	}

	pids = []int32{}
	for _, t := range tasks {
		data, err := os.ReadFile(filepath.Join(taskDir, t.Name(), "children"))
		if errors.Is(err, fs.ErrNotExist) {
			if _, statErr := os.Stat(filepath.Join(taskDir, t.Name())); statErr == nil {
				return nil, false, nil
			}
			continue // thread exited
		}
		if err != nil {
			return nil, false, err
		}
		for _, f := range bytes.Fields(data) {
			pids = append(pids, int32(toInt64(f)))
		}
	}
	return pids, true, nil
}

// scanChildren walks every pid's stat looking for ppid == h.PID.
func (s *ProcfsSource) scanChildren(h Handle) Query[[]int32] {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return failed[[]int32](err)
	}
	var pids []int32
	for _, p := range procs {
		st, err := s.stat(int32(p.PID))
		if err != nil {
			continue
		}
		if st.PPID == h.PID {
			pids = append(pids, int32(p.PID))
		}
	}
	return found(pids)
}

func (s *ProcfsSource) Snapshot(_ context.Context, h Handle) Query[Counters] {
	st, q, err := s.check(h)
	if q != Found {
		return Query[Counters]{Outcome: q, Err: err}
	}
	proc, err := s.fs.Proc(int(h.PID))
	if err != nil {
		return procfsFailure[Counters](err)
	}
	fds, err := proc.FileDescriptorsLen()
	if err != nil {
		return procfsFailure[Counters](err)
	}
	return found(Counters{
		CPUUser:    float64(st.UTime) / jiffiesPerSecond,
		CPUSystem:  float64(st.STime) / jiffiesPerSecond,
		RSS:        st.RSSPages * s.pageSize,
		VMS:        st.VSize,
		NumFDs:     int32(fds),
		NumThreads: st.NumThreads,
	})
}

func (s *ProcfsSource) Release(Handle) {}

func procfsFailure[T any](err error) Query[T] {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ESRCH) {
		return notFound[T]()
	}
	return failed[T](err)
}

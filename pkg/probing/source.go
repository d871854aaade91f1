// Package probing queries the OS for the identity, children and resource
// counters of individual processes.
//
// Every query returns a Query value instead of a bare error: a process that
// has exited is an expected outcome (NotFound), not a failure, and callers
// branch on it to detect termination.
package probing

import (
	"context"
	"fmt"
	"strings"
)

// Outcome classifies the result of one query.
type Outcome uint8

const (
	// Found means the process answered the query.
	Found Outcome = iota
	// NotFound means the process no longer exists (or its pid was reused).
	NotFound
	// Failed means the process may exist but could not be queried,
	// e.g. permission denied. Err holds the cause.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not-found"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Query is the explicit result of a process query.
type Query[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

// Alive reports whether the query reached the process.
func (q Query[T]) Alive() bool { return q.Outcome == Found }

func found[T any](v T) Query[T] { return Query[T]{Value: v, Outcome: Found} }

func notFound[T any]() Query[T] { return Query[T]{Outcome: NotFound} }

func failed[T any](err error) Query[T] { return Query[T]{Outcome: Failed, Err: err} }

// Handle identifies one process incarnation. A pid alone is only unique while
// the process lives, so Created pins the incarnation that was opened.
type Handle struct {
	PID     int32
	PPID    int32   // OS parent at open time
	Created float64 // Unix seconds
}

// Counters is one resource snapshot.
type Counters struct {
	CPUUser    float64 // cumulative seconds
	CPUSystem  float64 // cumulative seconds
	RSS        uint64
	VMS        uint64
	NumFDs     int32
	NumThreads int32
}

// Source is a process-introspection provider.
type Source interface {
	// Open resolves a pid to a Handle, capturing its creation time and parent.
	Open(ctx context.Context, pid int32) Query[Handle]
	// Children lists the pids whose OS parent is currently h.
	Children(ctx context.Context, h Handle) Query[[]int32]
	// Snapshot reads the resource counters of h.
	Snapshot(ctx context.Context, h Handle) Query[Counters]
	// Release drops any state cached for h.
	Release(h Handle)
}

// Source names accepted by NewSource.
const (
	SourcePsutil = "psutil"
	SourceProcfs = "procfs"
)

// NewSource builds the named source.
func NewSource(name string) (Source, error) {
	switch strings.ToLower(name) {
	case "", SourcePsutil:
		return NewPsutilSource(), nil
	case SourceProcfs:
		src, err := NewProcfsSource()
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown process source: %q", name)
	}
}

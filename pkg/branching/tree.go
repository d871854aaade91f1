// Package branching rebuilds the fork tree of a watched process from its
// lifetime log and lays it out as a branching diagram: one horizontal line
// per process, ordered so every subtree sits directly under its parent.
package branching

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"ProcGraph/pkg/records"

	"go.uber.org/zap"
)

var (
	ErrResolution     = errors.New("time resolution must be positive")
	ErrRootCount      = errors.New("lifetime log must contain exactly one root")
	ErrDanglingParent = errors.New("recorded parent missing from lifetime log")
	ErrDisconnected   = errors.New("process not connected to root")
	ErrDuplicatePID   = errors.New("duplicate process in lifetime log")
)

const DefaultResolution = 0.1

// Options controls reconstruction.
type Options struct {
	// Resolution is seconds per horizontal time unit.
	Resolution float64
	// Strict rejects any inconsistency. Otherwise duplicates keep their first
	// record and subtrees that cannot be attached to the root are dropped.
	Strict bool
	Logger *zap.Logger
}

// Node is one reconstructed process incarnation. A pid the OS reused shows
// up as several nodes told apart by creation time.
type Node struct {
	PID          int32
	PPID         int32
	CreationTime float64
	ExitTime     float64
	Root         bool

	// Index is the node's row in Tree.Nodes; Parent is the parent's row, -1
	// for the root.
	Index  int
	Parent int

	// Children in log order; SortedChildren most recently created first.
	// Both hold rows in Tree.Nodes.
	Children       []int
	SortedChildren []int
	NumDescendants int

	RelativeCreation float64
	RelativeExit     float64
	CreationUnits    int64
	ExitUnits        int64
}

// Tree is the reconstructed process tree. Nodes is in draw order, so the
// root is Nodes[0] and every subtree occupies the rows right after its top.
type Tree struct {
	Nodes      []*Node
	Root       int32
	Start      float64 // earliest creation time
	End        float64 // latest exit time
	Span       float64
	Resolution float64
	// Order is the pre-order draw sequence of pids, root first.
	Order []int32
	// Dropped lists pids discarded by non-strict reconstruction.
	Dropped []int32

	byPID map[int32][]int
}

// Build reconstructs the tree from a complete lifetime log.
func Build(recs []records.LifetimeRecord, opts Options) (*Tree, error) {
	res := opts.Resolution
	if !(res > 0) || math.IsInf(res, 1) {
		return nil, fmt.Errorf("%w: %v", ErrResolution, res)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// nodes stay in first-seen log order until the draw order is known
	var (
		nodes = make([]*Node, 0, len(recs))
		byPID = make(map[int32][]int, len(recs))
	)
	for _, r := range recs {
		if dup := findIncarnation(nodes, byPID[r.PID], r.CreationTime); dup >= 0 {
			if opts.Strict {
				return nil, fmt.Errorf("%w: %d created at %v", ErrDuplicatePID, r.PID, r.CreationTime)
			}
			log.Warn("duplicate lifetime record ignored", zap.Int32("pid", r.PID))
			continue
		}
		byPID[r.PID] = append(byPID[r.PID], len(nodes))
		nodes = append(nodes, &Node{
			PID:          r.PID,
			PPID:         r.PPID,
			CreationTime: r.CreationTime,
			ExitTime:     r.ExitTime,
			Root:         r.Root,
			Index:        len(nodes),
			Parent:       -1,
		})
	}

	var roots []int32
	root := -1
	for i, n := range nodes {
		if n.Root {
			roots = append(roots, n.PID)
			root = i
		}
	}
	if len(roots) != 1 {
		return nil, fmt.Errorf("%w: found %d %v", ErrRootCount, len(roots), roots)
	}

	for i, n := range nodes {
		if n.Root {
			continue
		}
		parent := parentOf(nodes, byPID[n.PPID], n.CreationTime)
		if parent < 0 {
			if opts.Strict {
				return nil, fmt.Errorf("%w: pid %d has parent %d", ErrDanglingParent, n.PID, n.PPID)
			}
			continue
		}
		n.Parent = parent
		nodes[parent].Children = append(nodes[parent].Children, i)
	}

	t := &Tree{Root: nodes[root].PID, Resolution: res}

	reach := reachable(nodes, root)
	kept := nodes[:0:0]
	for i, n := range nodes {
		if reach[i] {
			kept = append(kept, n)
			continue
		}
		if opts.Strict {
			return nil, fmt.Errorf("%w: pid %d (parent %d)", ErrDisconnected, n.PID, n.PPID)
		}
		log.Warn("dropping process unreachable from root",
			zap.Int32("pid", n.PID), zap.Int32("ppid", n.PPID))
		t.Dropped = append(t.Dropped, n.PID)
	}

	t.Start, t.End = math.Inf(1), math.Inf(-1)
	for _, n := range kept {
		t.Start = math.Min(t.Start, n.CreationTime)
		t.End = math.Max(t.End, n.ExitTime)
	}
	t.Span = t.End - t.Start

	for _, n := range kept {
		n.RelativeCreation = n.CreationTime - t.Start
		n.RelativeExit = n.ExitTime - t.Start
		n.CreationUnits = int64(n.RelativeCreation / res)
		n.ExitUnits = int64(n.RelativeExit / res)

		n.SortedChildren = append([]int(nil), n.Children...)
		sort.SliceStable(n.SortedChildren, func(i, j int) bool {
			return nodes[n.SortedChildren[i]].CreationTime > nodes[n.SortedChildren[j]].CreationTime
		})
	}

	t.renumber(nodes, drawOrder(nodes, root))

	// Reverse pre-order visits every child before its parent.
	for i := len(t.Nodes) - 1; i > 0; i-- {
		n := t.Nodes[i]
		t.Nodes[n.Parent].NumDescendants += 1 + n.NumDescendants
	}
	return t, nil
}

// findIncarnation returns the node among candidates created at created, or -1.
func findIncarnation(nodes []*Node, candidates []int, created float64) int {
	for _, c := range candidates {
		if nodes[c].CreationTime == created {
			return c
		}
	}
	return -1
}

// parentOf picks the incarnation of the parent pid that existed when the
// child was created: the latest one created no later than the child. When
// clock jitter puts every candidate after the child, the earliest is used.
func parentOf(nodes []*Node, candidates []int, created float64) int {
	best := -1
	for _, c := range candidates {
		ct := nodes[c].CreationTime
		if ct > created {
			continue
		}
		if best < 0 || ct > nodes[best].CreationTime {
			best = c
		}
	}
	if best < 0 && len(candidates) > 0 {
		best = candidates[0]
		for _, c := range candidates[1:] {
			if nodes[c].CreationTime < nodes[best].CreationTime {
				best = c
			}
		}
	}
	return best
}

// reachable walks Children from the root with an explicit stack.
func reachable(nodes []*Node, root int) []bool {
	seen := make([]bool, len(nodes))
	seen[root] = true
	stack := []int{root}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range nodes[i].Children {
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return seen
}

// drawOrder is a pre-order walk over SortedChildren. Children are pushed in
// reverse so the first sorted child is visited first.
func drawOrder(nodes []*Node, root int) []int {
	var order []int
	stack := []int{root}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, i)
		kids := nodes[i].SortedChildren
		for k := len(kids) - 1; k >= 0; k-- {
			stack = append(stack, kids[k])
		}
	}
	return order
}

// renumber stores the nodes in draw order and rewrites every node reference
// from log position to row.
func (t *Tree) renumber(nodes []*Node, order []int) {
	row := make([]int, len(nodes))
	for r, i := range order {
		row[i] = r
	}
	remap := func(xs []int) {
		for k, x := range xs {
			xs[k] = row[x]
		}
	}

	t.Nodes = make([]*Node, len(order))
	t.Order = make([]int32, len(order))
	t.byPID = make(map[int32][]int, len(order))
	for r, i := range order {
		n := nodes[i]
		n.Index = r
		if n.Parent >= 0 {
			n.Parent = row[n.Parent]
		}
		remap(n.Children)
		remap(n.SortedChildren)
		t.Nodes[r] = n
		t.Order[r] = n.PID
		t.byPID[n.PID] = append(t.byPID[n.PID], r)
	}
}

// Node returns the first incarnation of pid in draw order, or nil.
func (t *Tree) Node(pid int32) *Node {
	if rows := t.byPID[pid]; len(rows) > 0 {
		return t.Nodes[rows[0]]
	}
	return nil
}

// Incarnations returns every node of pid in draw order.
func (t *Tree) Incarnations(pid int32) []*Node {
	rows := t.byPID[pid]
	out := make([]*Node, len(rows))
	for k, r := range rows {
		out[k] = t.Nodes[r]
	}
	return out
}

// Len is the number of processes in the tree.
func (t *Tree) Len() int { return len(t.Nodes) }

// Row is one process as handed to a renderer.
type Row struct {
	PID         int32 `json:"pid" parquet:"pid"`
	PPID        int32 `json:"ppid" parquet:"ppid"`
	Index       int   `json:"index" parquet:"index"`
	StartUnits  int64 `json:"start_units" parquet:"start_units"`
	EndUnits    int64 `json:"end_units" parquet:"end_units"`
	ParentIndex int   `json:"parent_index" parquet:"parent_index"` // -1 for the root
	Descendants int   `json:"num_descendants" parquet:"num_descendants"`
}

// Rows lists every process in draw order with its row position, horizontal
// span and the row position of its parent.
func (t *Tree) Rows() []Row {
	rows := make([]Row, len(t.Nodes))
	for i, n := range t.Nodes {
		rows[i] = Row{
			PID:         n.PID,
			PPID:        n.PPID,
			Index:       i,
			StartUnits:  n.CreationUnits,
			EndUnits:    n.ExitUnits,
			ParentIndex: n.Parent,
			Descendants: n.NumDescendants,
		}
	}
	return rows
}

package branching

import (
	"testing"

	"ProcGraph/pkg/records"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func rec(pid, ppid int32, created, exited float64, root bool) records.LifetimeRecord {
	return records.NewLifetimeRecord(pid, ppid, created, exited, root)
}

func strict() Options { return Options{Resolution: 0.1, Strict: true} }

// root forks A then B; lifetime records arrive in exit order.
func twoChildren() []records.LifetimeRecord {
	return []records.LifetimeRecord{
		rec(2, 1, 1.0, 3.0, false),
		rec(3, 1, 2.0, 5.0, false),
		rec(1, 0, 0.0, 6.0, true),
	}
}

func TestBuildTwoChildren(t *testing.T) {
	tree, err := Build(twoChildren(), strict())
	require.NoError(t, err)

	assert.Equal(t, int32(1), tree.Root)
	root := tree.Nodes[0]
	assert.Equal(t, int32(1), root.PID)
	assert.Equal(t, -1, root.Parent)
	// rows: root, B (pid 3), A (pid 2); Children keep log order
	assert.Equal(t, []int{2, 1}, root.Children)
	assert.Equal(t, []int{1, 2}, root.SortedChildren)
	assert.Equal(t, []int32{1, 3, 2}, tree.Order)
	assert.Equal(t, 2, root.NumDescendants)
	assert.Equal(t, 0, tree.Node(2).NumDescendants)

	assert.Equal(t, 0.0, tree.Start)
	assert.Equal(t, 6.0, tree.End)
	assert.Equal(t, 6.0, tree.Span)

	b := tree.Node(3)
	assert.Equal(t, 2.0, b.RelativeCreation)
	assert.Equal(t, int64(20), b.CreationUnits)
	assert.Equal(t, int64(50), b.ExitUnits)
}

func TestBuildRelativeToEarliestCreation(t *testing.T) {
	recs := []records.LifetimeRecord{
		rec(11, 10, 1000.5, 1001.25, false),
		rec(10, 9, 1000.0, 1002.0, true),
	}
	tree, err := Build(recs, Options{Resolution: 0.5, Strict: true})
	require.NoError(t, err)
	n := tree.Node(11)
	assert.InDelta(t, 0.5, n.RelativeCreation, 1e-9)
	assert.Equal(t, int64(1), n.CreationUnits)
	// 1.25 / 0.5 truncates to 2
	assert.Equal(t, int64(2), n.ExitUnits)
}

func TestNumDescendantsRoundTrip(t *testing.T) {
	recs := []records.LifetimeRecord{
		rec(5, 3, 4, 5, false),
		rec(4, 2, 3, 6, false),
		rec(6, 3, 4.5, 6, false),
		rec(3, 1, 2, 7, false),
		rec(2, 1, 1, 8, false),
		rec(1, 0, 0, 9, true),
	}
	tree, err := Build(recs, strict())
	require.NoError(t, err)
	assert.Equal(t, len(recs)-1, tree.Node(1).NumDescendants)
	assert.Equal(t, 2, tree.Node(3).NumDescendants)
	assert.Equal(t, 1, tree.Node(2).NumDescendants)
	assert.Equal(t, []int32{1, 3, 6, 5, 2, 4}, tree.Order)
}

func TestDrawOrderKeepsSubtreesContiguous(t *testing.T) {
	// A fan of chains: every node forks two children at different times.
	var recs []records.LifetimeRecord
	recs = append(recs, rec(1, 0, 0, 100, true))
	next := int32(2)
	frontier := []int32{1}
	for depth := 0; depth < 5; depth++ {
		var grown []int32
		for _, p := range frontier {
			for k := 0; k < 2; k++ {
				recs = append(recs, rec(next, p, float64(depth)+float64(k)/10+float64(next)/1000, 100, false))
				grown = append(grown, next)
				next++
			}
		}
		frontier = grown
	}

	tree, err := Build(recs, strict())
	require.NoError(t, err)
	require.Equal(t, len(recs), tree.Len())
	assert.Equal(t, tree.Root, tree.Order[0])

	for row, n := range tree.Nodes {
		assert.Equal(t, row, n.Index)
		// A node's subtree occupies exactly the NumDescendants rows after it.
		lo, hi := row, row+n.NumDescendants
		var walk func(int)
		walk = func(p int) {
			for _, c := range tree.Nodes[p].Children {
				assert.Greater(t, c, lo, "child row %d of %d", c, row)
				assert.LessOrEqual(t, c, hi, "child row %d of %d", c, row)
				assert.Equal(t, p, tree.Nodes[c].Parent)
				walk(c)
			}
		}
		walk(row)
		for i := 1; i < len(n.SortedChildren); i++ {
			prev, cur := n.SortedChildren[i-1], n.SortedChildren[i]
			assert.Less(t, prev, cur)
			assert.GreaterOrEqual(t, tree.Nodes[prev].CreationTime, tree.Nodes[cur].CreationTime)
		}
	}
}

func TestEqualCreationTimesKeepLogOrder(t *testing.T) {
	recs := []records.LifetimeRecord{
		rec(4, 1, 1, 2, false),
		rec(2, 1, 1, 2, false),
		rec(3, 1, 1, 2, false),
		rec(1, 0, 0, 3, true),
	}
	tree, err := Build(recs, strict())
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 4, 2, 3}, tree.Order)
}

func TestDeepChain(t *testing.T) {
	const depth = 100000
	recs := make([]records.LifetimeRecord, 0, depth)
	recs = append(recs, rec(1, 0, 0, depth+1, true))
	for pid := int32(2); pid <= depth; pid++ {
		recs = append(recs, rec(pid, pid-1, float64(pid), depth+1, false))
	}
	tree, err := Build(recs, Options{Resolution: 1, Strict: true})
	require.NoError(t, err)
	assert.Equal(t, depth-1, tree.Nodes[0].NumDescendants)
	assert.Equal(t, int32(depth), tree.Order[depth-1])
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		recs []records.LifetimeRecord
		opts Options
		want error
	}{
		{"empty", nil, strict(), ErrRootCount},
		{"no root", []records.LifetimeRecord{rec(2, 1, 0, 1, false)}, strict(), ErrRootCount},
		{"two roots", []records.LifetimeRecord{rec(1, 0, 0, 1, true), rec(2, 0, 0, 1, true)}, strict(), ErrRootCount},
		{"dangling", append(twoChildren(), rec(9, 8, 1, 2, false)), strict(), ErrDanglingParent},
		{"cycle", append(twoChildren(), rec(7, 8, 1, 2, false), rec(8, 7, 1, 2, false)), strict(), ErrDisconnected},
		{"duplicate", append(twoChildren(), rec(2, 1, 1, 3.5, false)), strict(), ErrDuplicatePID},
		{"zero resolution", twoChildren(), Options{Resolution: 0, Strict: true}, ErrResolution},
		{"negative resolution", twoChildren(), Options{Resolution: -1}, ErrResolution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Build(tt.recs, tt.opts)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, tree)
		})
	}
}

func TestNonStrictDropsUnreachable(t *testing.T) {
	recs := append(twoChildren(),
		rec(9, 8, 1, 2, false),   // parent lost
		rec(10, 9, 1.5, 2, false), // under the lost subtree
		rec(2, 1, 1, 9, false),    // duplicate, first wins
	)
	tree, err := Build(recs, Options{Resolution: 0.1, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{9, 10}, tree.Dropped)
	assert.Equal(t, []int32{1, 3, 2}, tree.Order)
	assert.Equal(t, 1.0, tree.Node(2).CreationTime)
	assert.Len(t, tree.Incarnations(2), 1)
	assert.Equal(t, 2, tree.Node(1).NumDescendants)
	assert.Nil(t, tree.Node(9))
}

// pid 2 exits at 3.0 and the OS hands the pid to a new child of the root at
// 3.5, which then forks pid 7.
func TestReusedPIDIsANewProcess(t *testing.T) {
	recs := []records.LifetimeRecord{
		rec(2, 1, 1.0, 3.0, false),
		rec(7, 2, 4.0, 4.5, false),
		rec(2, 1, 3.5, 5.0, false),
		rec(1, 0, 0.0, 6.0, true),
	}
	tree, err := Build(recs, strict())
	require.NoError(t, err)

	assert.Equal(t, []int32{1, 2, 7, 2}, tree.Order)
	assert.Equal(t, 3, tree.Nodes[0].NumDescendants)

	both := tree.Incarnations(2)
	require.Len(t, both, 2)
	assert.Equal(t, 3.5, both[0].CreationTime)
	assert.Equal(t, 1, both[0].NumDescendants)
	assert.Equal(t, 1.0, both[1].CreationTime)
	assert.Equal(t, 0, both[1].NumDescendants)

	// pid 7 hangs off the incarnation alive when it was forked
	assert.Equal(t, both[0].Index, tree.Node(7).Parent)

	rows := tree.Rows()
	assert.Equal(t, 1, rows[2].ParentIndex)
	assert.Equal(t, 0, rows[3].ParentIndex)
}

func TestRows(t *testing.T) {
	tree, err := Build(twoChildren(), strict())
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{PID: 1, PPID: 0, Index: 0, StartUnits: 0, EndUnits: 60, ParentIndex: -1, Descendants: 2},
		{PID: 3, PPID: 1, Index: 1, StartUnits: 20, EndUnits: 50, ParentIndex: 0},
		{PID: 2, PPID: 1, Index: 2, StartUnits: 10, EndUnits: 30, ParentIndex: 0},
	}, tree.Rows())
}

func TestLayout(t *testing.T) {
	tree, err := Build(twoChildren(), Options{Resolution: 0.5, Strict: true})
	require.NoError(t, err)

	l, err := tree.Layout(2, 5)
	require.NoError(t, err)
	assert.Equal(t, 12+10, l.Width)
	assert.Equal(t, 3*2+4*5, l.Height)
	assert.Equal(t, []Segment{
		{X0: 5, Y0: 5, X1: 17, Y1: 5, PID: 1},
		{X0: 9, Y0: 12, X1: 15, Y1: 12, PID: 3},
		{X0: 9, Y0: 12, X1: 9, Y1: 5, PID: 3, Connector: true},
		{X0: 7, Y0: 19, X1: 11, Y1: 19, PID: 2},
		{X0: 7, Y0: 19, X1: 7, Y1: 5, PID: 2, Connector: true},
	}, l.Segments)

	_, err = tree.Layout(0, 5)
	assert.ErrorIs(t, err, ErrLayout)
	_, err = tree.Layout(1, -1)
	assert.ErrorIs(t, err, ErrLayout)
}

func BenchmarkBuild(b *testing.B) {
	recs := []records.LifetimeRecord{rec(1, 0, 0, 1e4, true)}
	for pid := int32(2); pid < 10000; pid++ {
		recs = append(recs, rec(pid, pid/2, float64(pid), 1e4, false))
	}
	opts := Options{Resolution: 0.1, Strict: true}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(recs, opts); err != nil {
			b.Fatal(err)
		}
	}
}

//go:build linux

package probing

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStat = "1234 (my (odd) proc) S 1 1234 1234 0 -1 4194560 100 0 0 0 250 50 0 0 20 0 3 0 500 123456789 300 18446744073709551615\n"

func TestParseStat(t *testing.T) {
	st, err := parseStat([]byte(sampleStat))
	require.NoError(t, err)
	assert.Equal(t, byte('S'), st.State)
	assert.Equal(t, int32(1), st.PPID)
	assert.Equal(t, int64(250), st.UTime)
	assert.Equal(t, int64(50), st.STime)
	assert.Equal(t, int32(3), st.NumThreads)
	assert.Equal(t, int64(500), st.StartTime)
	assert.Equal(t, uint64(123456789), st.VSize)
	assert.Equal(t, uint64(300), st.RSSPages)
}

func TestParseStatMalformed(t *testing.T) {
	_, err := parseStat([]byte("1234 no parens"))
	assert.Error(t, err)
	_, err = parseStat([]byte("1234 (x) S 1 2"))
	assert.Error(t, err)
}

// fakeProc lays out a minimal /proc tree under a temp dir.
type fakeProc struct {
	t    *testing.T
	root string
}

func newFakeProc(t *testing.T) *fakeProc {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stat"), []byte("btime 1700000000\n"), 0644))
	return &fakeProc{t: t, root: root}
}

func (f *fakeProc) add(pid, ppid, start int, children string) {
	dir := filepath.Join(f.root, strconv.Itoa(pid))
	task := filepath.Join(dir, "task", strconv.Itoa(pid))
	require.NoError(f.t, os.MkdirAll(task, 0755))
	require.NoError(f.t, os.MkdirAll(filepath.Join(dir, "fd"), 0755))
	for i := 0; i < 3; i++ {
		require.NoError(f.t, os.WriteFile(filepath.Join(dir, "fd", strconv.Itoa(i)), nil, 0644))
	}
	line := strconv.Itoa(pid) + " (p) S " + strconv.Itoa(ppid) +
		" 0 0 0 -1 0 0 0 0 0 250 50 0 0 20 0 2 0 " + strconv.Itoa(start) + " 4096000 10 0\n"
	require.NoError(f.t, os.WriteFile(filepath.Join(dir, "stat"), []byte(line), 0644))
	require.NoError(f.t, os.WriteFile(filepath.Join(task, "children"), []byte(children), 0644))
}

func TestProcfsSource(t *testing.T) {
	fp := newFakeProc(t)
	fp.add(10, 1, 500, "11 12 ")
	fp.add(11, 10, 600, "")
	fp.add(12, 10, 700, "")

	src, err := newProcfsSource(fp.root)
	require.NoError(t, err)
	ctx := context.Background()

	q := src.Open(ctx, 10)
	require.True(t, q.Alive())
	assert.Equal(t, int32(1), q.Value.PPID)
	assert.InDelta(t, 1700000005.0, q.Value.Created, 1e-9)

	kids := src.Children(ctx, q.Value)
	require.True(t, kids.Alive())
	assert.Equal(t, []int32{11, 12}, kids.Value)

	snap := src.Snapshot(ctx, q.Value)
	require.True(t, snap.Alive())
	assert.InDelta(t, 2.5, snap.Value.CPUUser, 1e-9)
	assert.InDelta(t, 0.5, snap.Value.CPUSystem, 1e-9)
	assert.Equal(t, int32(3), snap.Value.NumFDs)
	assert.Equal(t, int32(2), snap.Value.NumThreads)
	assert.Equal(t, uint64(4096000), snap.Value.VMS)
	assert.Equal(t, 10*uint64(os.Getpagesize()), snap.Value.RSS)
}

func TestProcfsSourceExitAndReuse(t *testing.T) {
	fp := newFakeProc(t)
	fp.add(10, 1, 500, "")
	src, err := newProcfsSource(fp.root)
	require.NoError(t, err)
	ctx := context.Background()

	h := src.Open(ctx, 10).Value

	// same pid, later start time: a different incarnation
	fp.add(10, 1, 900, "")
	assert.Equal(t, NotFound, src.Snapshot(ctx, h).Outcome)
	assert.Equal(t, NotFound, src.Children(ctx, h).Outcome)

	require.NoError(t, os.RemoveAll(filepath.Join(fp.root, "10")))
	assert.Equal(t, NotFound, src.Open(ctx, 10).Outcome)
}

func TestProcfsSourceScanFallback(t *testing.T) {
	fp := newFakeProc(t)
	fp.add(10, 1, 500, "")
	fp.add(11, 10, 600, "")
	fp.add(12, 11, 700, "")
	// no children file: the kernel lacks CONFIG_PROC_CHILDREN
	require.NoError(t, os.Remove(filepath.Join(fp.root, "10", "task", "10", "children")))

	src, err := newProcfsSource(fp.root)
	require.NoError(t, err)
	ctx := context.Background()

	kids := src.Children(ctx, src.Open(ctx, 10).Value)
	require.True(t, kids.Alive())
	assert.Equal(t, []int32{11}, kids.Value)
}

func TestProcfsSourceMissingBootTime(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stat"), []byte("cpu 1 2 3 4\n"), 0644))
	_, err := newProcfsSource(root)
	assert.ErrorContains(t, err, "btime")
}

func TestProcfsSourceSelf(t *testing.T) {
	src, err := NewProcfsSource()
	require.NoError(t, err)
	q := src.Open(context.Background(), int32(os.Getpid()))
	require.True(t, q.Alive())
	assert.Equal(t, int32(os.Getppid()), q.Value.PPID)
	snap := src.Snapshot(context.Background(), q.Value)
	require.True(t, snap.Alive())
	assert.Greater(t, snap.Value.NumThreads, int32(0))
}

func BenchmarkParseStat(b *testing.B) {
	data := []byte(sampleStat)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		parseStat(data)
	}
}

func BenchmarkProcfsSnapshotSelf(b *testing.B) {
	src, err := NewProcfsSource()
	if err != nil {
		b.Skip(err)
	}
	h := src.Open(context.Background(), int32(os.Getpid())).Value
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		src.Snapshot(context.Background(), h)
	}
}

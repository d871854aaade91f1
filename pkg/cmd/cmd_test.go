package cmd

import (
	"bytes"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"ProcGraph/pkg/branching"
	"ProcGraph/pkg/exporting"
	"ProcGraph/pkg/records"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeJSONL(t *testing.T, path string, rows ...any) {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		require.NoError(t, enc.Encode(r))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestTreeCommand(t *testing.T) {
	dir := t.TempDir()
	lifetime := filepath.Join(dir, "lifetime.jsonl")
	writeJSONL(t, lifetime,
		records.NewLifetimeRecord(2, 1, 1.0, 3.0, false),
		records.NewLifetimeRecord(3, 1, 2.0, 5.0, false),
		records.NewLifetimeRecord(1, 0, 0.0, 6.0, true),
	)
	image := filepath.Join(dir, "branching.png")
	rows := filepath.Join(dir, "rows.parquet")

	out, err := execute(t, "tree", "--lifetime-log", lifetime, "-o", image, "--rows", rows)
	require.NoError(t, err)
	assert.Contains(t, out, "ORDER:")
	assert.Contains(t, out, "1 3 2")

	f, err := os.Open(image)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 60+2*5, cfg.Width)
	assert.Equal(t, 3*1+4*5, cfg.Height)

	got, err := exporting.LoadRows[branching.Row](rows)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int32(3), got[1].PID)
}

func TestTreeCommandRejectsTwoRoots(t *testing.T) {
	dir := t.TempDir()
	lifetime := filepath.Join(dir, "lifetime.jsonl")
	writeJSONL(t, lifetime,
		records.NewLifetimeRecord(1, 0, 0, 1, true),
		records.NewLifetimeRecord(2, 0, 0, 1, true),
	)
	image := filepath.Join(dir, "branching.png")

	_, err := execute(t, "tree", "--lifetime-log", lifetime, "-o", image)
	assert.ErrorContains(t, err, "exactly one root")
	assert.NoFileExists(t, image)
}

func TestTreeCommandNonStrict(t *testing.T) {
	dir := t.TempDir()
	lifetime := filepath.Join(dir, "lifetime.jsonl")
	writeJSONL(t, lifetime,
		records.NewLifetimeRecord(9, 8, 0.5, 1, false),
		records.NewLifetimeRecord(1, 0, 0, 1, true),
	)

	_, err := execute(t, "tree", "--lifetime-log", lifetime, "-o", "")
	assert.ErrorContains(t, err, "recorded parent missing")

	out, err := execute(t, "tree", "--lifetime-log", lifetime, "-o", "", "--strict=false")
	require.NoError(t, err)
	assert.Contains(t, out, "DROPPED:")
}

func TestUsageCommand(t *testing.T) {
	dir := t.TempDir()
	usage := filepath.Join(dir, "usage.jsonl")
	writeJSONL(t, usage,
		records.UsageRecord{PID: 1, CPUTimes: records.CPUTimes{User: 1}, Time: 10},
		records.UsageRecord{PID: 1, CPUTimes: records.CPUTimes{User: 1.4, System: 0.1}, Time: 11},
	)
	html := filepath.Join(dir, "usage.html")
	export := filepath.Join(dir, "series.jsonl")

	_, err := execute(t, "usage", "--usage-log", usage, "-o", html, "--export", export)
	require.NoError(t, err)
	assert.FileExists(t, html)

	rows, err := exporting.ReadJSONL[struct {
		Utilization float64 `json:"utilization"`
	}](export)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.InDelta(t, 0.5, rows[1].Utilization, 1e-9)
}

func TestUsageCommandRejectsClockSkew(t *testing.T) {
	dir := t.TempDir()
	usage := filepath.Join(dir, "usage.jsonl")
	writeJSONL(t, usage,
		records.UsageRecord{PID: 1, Time: 10},
		records.UsageRecord{PID: 1, Time: 10},
	)
	html := filepath.Join(dir, "usage.html")
	_, err := execute(t, "usage", "--usage-log", usage, "-o", html)
	assert.ErrorContains(t, err, "non-positive time delta")
	assert.NoFileExists(t, html)
}

func TestWatchRequiresPID(t *testing.T) {
	_, err := execute(t, "watch")
	assert.ErrorContains(t, err, "--pid")

	_, err = execute(t, "watch", "--pid", "1", "--interval", "0s")
	assert.ErrorContains(t, err, "poll interval")
}

func TestRunCommandWatchesTree(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc")
	}
	dir := t.TempDir()
	lifetime := filepath.Join(dir, "lifetime.jsonl")
	usage := filepath.Join(dir, "usage.jsonl")

	_, err := execute(t, "run",
		"--interval", "10ms",
		"--lifetime-log", lifetime,
		"--usage-log", usage,
		"--", "/bin/sh", "-c", "sleep 0.3 & sleep 0.2; wait")
	require.NoError(t, err)

	recs, err := exporting.ReadLifetimes(lifetime)
	require.NoError(t, err)
	var roots int
	for _, r := range recs {
		if r.Root {
			roots++
		}
		assert.GreaterOrEqual(t, r.ExitTime, r.CreationTime)
		if r.Root {
			// the shell waits for the longer sleep
			assert.GreaterOrEqual(t, r.LifeTime, 0.3-0.01)
		}
	}
	assert.Equal(t, 1, roots)
	assert.GreaterOrEqual(t, len(recs), 2)

	samples, err := exporting.ReadUsage(usage)
	require.NoError(t, err)
	assert.NotEmpty(t, samples)
}

func TestRunCommandSamplesLeafRoot(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc")
	}
	for _, source := range []string{"psutil", "procfs"} {
		t.Run(source, func(t *testing.T) {
			dir := t.TempDir()
			lifetime := filepath.Join(dir, "lifetime.jsonl")
			usage := filepath.Join(dir, "usage.jsonl")

			_, err := execute(t, "run",
				"--source", source,
				"--interval", "10ms",
				"--lifetime-log", lifetime,
				"--usage-log", usage,
				"--", "sleep", "0.3")
			require.NoError(t, err)

			recs, err := exporting.ReadLifetimes(lifetime)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.True(t, recs[0].Root)
			assert.GreaterOrEqual(t, recs[0].LifeTime, 0.3-0.01)

			samples, err := exporting.ReadUsage(usage)
			require.NoError(t, err)
			assert.Greater(t, len(samples), 1)
		})
	}
}

func TestRunCommandReportsExitCode(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc")
	}
	dir := t.TempDir()
	_, err := execute(t, "run",
		"--interval", "10ms",
		"--lifetime-log", filepath.Join(dir, "l.jsonl"),
		"--usage-log", filepath.Join(dir, "u.jsonl"),
		"--", "/bin/sh", "-c", "exit 3")
	require.Error(t, err)
	assert.True(t, strings.HasSuffix(err.Error(), "exited with code 3"), err.Error())
}

func TestRenderGraphs(t *testing.T) {
	dir := t.TempDir()
	lifetime := filepath.Join(dir, "lifetime.jsonl")
	usage := filepath.Join(dir, "usage.jsonl")
	writeJSONL(t, lifetime,
		records.NewLifetimeRecord(2, 1, 1.0, 3.0, false),
		records.NewLifetimeRecord(1, 0, 0.0, 6.0, true),
	)
	writeJSONL(t, usage,
		records.UsageRecord{PID: 1, Time: 1, CPUTimes: records.CPUTimes{User: 0.1}},
		records.UsageRecord{PID: 1, Time: 2, CPUTimes: records.CPUTimes{User: 0.6}},
	)
	out := filepath.Join(dir, "graphs")
	log := zaptest.NewLogger(t)

	require.NoError(t, renderGraphs(log, out, lifetime, usage))
	assert.FileExists(t, filepath.Join(out, "branching.png"))
	assert.FileExists(t, filepath.Join(out, "usage.html"))

	// a broken usage log still leaves the branching image
	other := filepath.Join(dir, "other")
	writeJSONL(t, usage,
		records.UsageRecord{PID: 1, Time: 2},
		records.UsageRecord{PID: 1, Time: 2},
	)
	err := renderGraphs(log, other, lifetime, usage)
	assert.ErrorContains(t, err, "utilization chart")
	assert.FileExists(t, filepath.Join(other, "branching.png"))
	assert.NoFileExists(t, filepath.Join(other, "usage.html"))
}

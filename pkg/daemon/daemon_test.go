//go:build unix

package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDetachRedirectsAndMarks(t *testing.T) {
	dir := t.TempDir()
	out, errPath := filepath.Join(dir, "watcher.out"), filepath.Join(dir, "watcher.err")

	pid, err := Detach(Options{
		Executable: "/bin/sh",
		Args: []string{"-c",
			`echo "$PROCGRAPH_DETACHED $PROCGRAPH_LAUNCHER_PID $(pwd) $EXTRA"; echo oops >&2`},
		Stdout: out,
		Stderr: errPath,
		Env:    []string{"EXTRA=yes"},
	})
	require.NoError(t, err)
	assert.Positive(t, pid)

	var got string
	require.Eventually(t, func() bool {
		data, _ := os.ReadFile(out)
		got = strings.TrimSpace(string(data))
		return got != ""
	}, 5*time.Second, 10*time.Millisecond)

	fields := strings.Fields(got)
	require.Len(t, fields, 4)
	assert.Equal(t, "1", fields[0])
	launcher, err := strconv.Atoi(fields[1])
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), launcher)
	assert.Equal(t, "/", fields[2])
	assert.Equal(t, "yes", fields[3])

	require.Eventually(t, func() bool {
		data, _ := os.ReadFile(errPath)
		return strings.TrimSpace(string(data)) == "oops"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDetachFailsOnUnwritableOutput(t *testing.T) {
	_, err := Detach(Options{
		Executable: "/bin/true",
		Stdout:     filepath.Join(t.TempDir(), "missing", "watcher.out"),
	})
	assert.Error(t, err)
}

func TestMarkers(t *testing.T) {
	t.Setenv(EnvDetached, "")
	t.Setenv(EnvLauncherPID, "")
	assert.False(t, IsDetached())
	assert.Zero(t, LauncherPID())

	t.Setenv(EnvDetached, "1")
	t.Setenv(EnvLauncherPID, "4242")
	assert.True(t, IsDetached())
	assert.Equal(t, int32(4242), LauncherPID())
}

func TestAbsolute(t *testing.T) {
	a, b, empty := "lifetime.jsonl", "/var/log/usage.jsonl", ""
	require.NoError(t, Absolute(&a, &b, &empty))
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "lifetime.jsonl"), a)
	assert.Equal(t, "/var/log/usage.jsonl", b)
	assert.Empty(t, empty)
}

func TestSettleClearsUmask(t *testing.T) {
	prev := Settle()
	defer unix.Umask(prev)
	assert.Equal(t, 0, unix.Umask(0))
}

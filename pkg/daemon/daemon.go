// Package daemon moves the watcher into the background: the binary re-execs
// itself in a new session with stdin detached, stdout and stderr redirected
// to files and the working directory set to /.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Environment markers passed to the detached child.
const (
	EnvDetached    = "PROCGRAPH_DETACHED"
	EnvLauncherPID = "PROCGRAPH_LAUNCHER_PID"
)

var ErrUnsupported = errors.New("detaching is not supported on this platform")

// Options describes the detached child.
type Options struct {
	// Executable defaults to the running binary.
	Executable string
	Args       []string
	// Stdout and Stderr are truncated and receive the child's streams.
	// Empty means the null device.
	Stdout string
	Stderr string
	Env    []string
}

// IsDetached reports whether this process was started by Detach.
func IsDetached() bool {
	return os.Getenv(EnvDetached) == "1"
}

// LauncherPID returns the pid of the process that called Detach, or 0.
func LauncherPID() int32 {
	pid, err := strconv.ParseInt(os.Getenv(EnvLauncherPID), 10, 32)
	if err != nil {
		return 0
	}
	return int32(pid)
}

// Absolute rewrites each non-empty path in place relative to the current
// directory. Must run before Detach since the child starts in /.
func Absolute(paths ...*string) error {
	for _, p := range paths {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

func openOutput(path string) (*os.File, error) {
	if path == "" {
		path = os.DevNull
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

//go:build unix

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Detach starts the child and returns its pid without waiting for it.
func Detach(opts Options) (pid int, err error) {
	exe := opts.Executable
	if exe == "" {
		if exe, err = os.Executable(); err != nil {
			return 0, fmt.Errorf("failed to locate executable: %w", err)
		}
	}

	stdout, err := openOutput(opts.Stdout)
	if err != nil {
		return 0, err
	}
	defer func() { err = multierr.Append(err, stdout.Close()) }()
	stderr, err := openOutput(opts.Stderr)
	if err != nil {
		return 0, err
	}
	defer func() { err = multierr.Append(err, stderr.Close()) }()

	cmd := exec.Command(exe, opts.Args...)
	cmd.Dir = "/"
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Env = append(cmd.Env,
		EnvDetached+"=1",
		fmt.Sprintf("%s=%d", EnvLauncherPID, os.Getpid()),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start detached process: %w", err)
	}
	pid = cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to release detached process: %w", err)
	}
	return pid, nil
}

// Settle finishes detachment inside the child by clearing the file mode
// creation mask. It returns the previous mask.
func Settle() int {
	return unix.Umask(0)
}

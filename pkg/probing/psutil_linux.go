//go:build linux

package probing

import "context"

// childPIDs prefers the kernel's per-task children lists and falls back to a
// full scan when they are not compiled in.
func childPIDs(ctx context.Context, pid int32) ([]int32, error) {
	pids, ok, err := taskChildren(procDir, pid)
	if err != nil || ok {
		return pids, err
	}
	return scanChildPIDs(ctx, pid)
}

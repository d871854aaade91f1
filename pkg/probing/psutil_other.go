//go:build !linux

package probing

import "context"

func childPIDs(ctx context.Context, pid int32) ([]int32, error) {
	return scanChildPIDs(ctx, pid)
}

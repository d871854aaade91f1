//go:build !linux

package probing

import (
	"context"
	"errors"
)

// ProcfsSource is only available on Linux.
type ProcfsSource struct{}

// NewProcfsSource always fails outside Linux.
func NewProcfsSource() (*ProcfsSource, error) {
	return nil, errors.New("procfs source requires linux")
}

func (s *ProcfsSource) Open(context.Context, int32) Query[Handle] {
	return failed[Handle](errors.New("procfs source requires linux"))
}

func (s *ProcfsSource) Children(context.Context, Handle) Query[[]int32] {
	return failed[[]int32](errors.New("procfs source requires linux"))
}

func (s *ProcfsSource) Snapshot(context.Context, Handle) Query[Counters] {
	return failed[Counters](errors.New("procfs source requires linux"))
}

func (s *ProcfsSource) Release(Handle) {}

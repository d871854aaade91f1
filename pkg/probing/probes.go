//go:build linux

package probing

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer pool to avoid allocations on every proc file read
var procBufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 4096)
		return &buf
	},
}

// readProcFile reads a small proc file (stat, statm) using a pooled buffer.
// Errors keep their errno so callers can tell ENOENT from EACCES.
func readProcFile(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	defer unix.Close(fd)

	bufPtr := procBufPool.Get().(*[]byte)
	defer procBufPool.Put(bufPtr)

	n, err := unix.Read(fd, *bufPtr)
	if err != nil {
		return nil, &os.PathError{Op: "read", Path: path, Err: err}
	}
	if n == 0 {
		// proc files of a process that exited mid-read come back empty
		return nil, &os.PathError{Op: "read", Path: path, Err: unix.ESRCH}
	}
	result := make([]byte, n)
	copy(result, (*bufPtr)[:n])
	return result, nil
}

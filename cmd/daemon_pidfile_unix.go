//go:build !windows

package cmd

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isProcessRunning reports whether pid names a live process. A process
// owned by another user still counts as running.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

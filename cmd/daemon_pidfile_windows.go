//go:build windows

package cmd

import (
	"golang.org/x/sys/windows"
)

// exit code reported for a process that has not exited
const stillActive = 259

// isProcessRunning reports whether pid names a live process.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}
	return code == stillActive
}

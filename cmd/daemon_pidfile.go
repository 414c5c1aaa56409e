package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/metroloop/metroloop/internal/config"
)

const pidFileName = "daemon.pid"

// ErrDaemonAlreadyRunning is returned when the PID file names a live process.
var ErrDaemonAlreadyRunning = errors.New("daemon already running")

// pidDir overrides the PID file directory. Empty means the directory of
// the default configuration file.
var pidDir string

// PidFile holds the process ID of the running daemon.
type PidFile struct {
	Path string
}

// daemonPidFile returns the PID file shared by the daemon and stop-daemon.
func daemonPidFile() PidFile {
	dir := pidDir
	if dir == "" {
		if p, err := config.DefaultPath(); err == nil {
			dir = filepath.Dir(p)
		} else {
			dir = os.TempDir()
		}
	}
	return PidFile{Path: filepath.Join(dir, pidFileName)}
}

// Write records pid, creating the parent directory if needed.
func (f PidFile) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return err
	}
	return os.WriteFile(f.Path, []byte(strconv.Itoa(pid)), 0644)
}

// Read returns the recorded PID. A missing file yields an error matching
// os.IsNotExist.
func (f PidFile) Read() (int, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", f.Path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID in %s: %d", f.Path, pid)
	}
	return pid, nil
}

// Remove deletes the file. A missing file is not an error.
func (f PidFile) Remove() error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Claim clears the way for a new daemon. Unreadable files and files left
// by a dead process are removed; a live owner yields
// ErrDaemonAlreadyRunning.
func (f PidFile) Claim() error {
	pid, err := f.Read()
	if os.IsNotExist(err) {
		return nil
	}
	if err == nil && isProcessRunning(pid) {
		return fmt.Errorf("%w (PID %d)", ErrDaemonAlreadyRunning, pid)
	}
	return f.Remove()
}

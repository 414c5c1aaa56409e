package cmd

import (
	"fmt"
	"os"
	"time"

	cmdcommon "github.com/metroloop/metroloop/cmd/common"
	"github.com/urfave/cli"
)

func stopDaemon(ctx *cli.Context) error {
	pidFile := daemonPidFile()
	pid, err := pidFile.Read()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("Daemon is not running (PID file not found)")
			return nil
		}
		cmdcommon.PrintRuntimeErr(ctx, "stop-daemon", "read_pid", err)
		return nil
	}

	if !isProcessRunning(pid) {
		fmt.Printf("Daemon is not running (stale PID %d), removing PID file\n", pid)
		if err := pidFile.Remove(); err != nil {
			cmdcommon.PrintRuntimeErr(ctx, "stop-daemon", "remove_pid", err)
		}
		return nil
	}

	fmt.Printf("Stopping daemon (PID %d)...\n", pid)
	if err := killDaemon(pid); err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "stop-daemon", "kill", err)
		return nil
	}
	// The daemon removes its own PID file on a graceful exit.
	fmt.Println("Daemon stopped successfully")
	return nil
}

const killPollInterval = 100 * time.Millisecond

// killTimeout bounds the graceful exit. Overridden in tests.
var killTimeout = 5 * time.Second

// killDaemon asks the daemon to terminate and waits for it to exit,
// killing it after killTimeout.
func killDaemon(pid int) error {
	if !isProcessRunning(pid) {
		return fmt.Errorf("daemon not running (PID %d)", pid)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}
	if err := terminate(process); err != nil {
		return err
	}

	ticker := time.NewTicker(killPollInterval)
	defer ticker.Stop()
	deadline := time.After(killTimeout)
	for {
		select {
		case <-ticker.C:
			if !isProcessRunning(pid) {
				return nil
			}
		case <-deadline:
			fmt.Println("Graceful shutdown timeout, forcing kill...")
			if err := process.Kill(); err != nil {
				return fmt.Errorf("failed to kill daemon: %w", err)
			}
			return nil
		}
	}
}

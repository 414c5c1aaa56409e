//go:build !windows

package cmd

import (
	"fmt"
	"os"
	"syscall"
)

func terminate(p *os.Process) error {
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}
	return nil
}

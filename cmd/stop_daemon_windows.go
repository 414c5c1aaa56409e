//go:build windows

package cmd

import (
	"fmt"
	"os"
)

// terminate interrupts the daemon. Processes without a console cannot
// receive os.Interrupt, so those are killed outright.
func terminate(p *os.Process) error {
	if err := p.Signal(os.Interrupt); err == nil {
		return nil
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	return nil
}

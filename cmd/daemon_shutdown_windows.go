//go:build windows

package cmd

import "os"

// SIGTERM is not delivered on Windows.
var shutdownSignals = []os.Signal{os.Interrupt}

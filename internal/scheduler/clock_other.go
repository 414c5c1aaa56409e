//go:build !linux

package scheduler

import "time"

var processStart = time.Now()

func monotonicNow() (time.Duration, error) {
	return time.Since(processStart), nil
}

// Package common provides shared names and types used by the metroloop
// daemon and its clients.
package common

// Environment variable names for configuration.
const (
	// ConfigEnv points at the JSON configuration file.
	ConfigEnv = "METROLOOP_CONFIG"

	// ListenEnv overrides the interface the daemon binds to.
	ListenEnv = "METROLOOP_LISTEN"

	// PortEnv overrides the daemon's TCP port.
	PortEnv = "METROLOOP_PORT"

	// SecretEnv sets the bearer token required by the daemon.
	SecretEnv = "METROLOOP_SECRET"

	// MaxConnsEnv caps concurrent consumer connections.
	MaxConnsEnv = "METROLOOP_MAX_CONNS"

	// PollIntervalEnv and LookaheadEnv tune the scheduler, as Go durations.
	PollIntervalEnv = "METROLOOP_POLL_INTERVAL"
	LookaheadEnv    = "METROLOOP_LOOKAHEAD"

	// DebugEnv enables debug logging.
	DebugEnv = "METROLOOP_DEBUG"
)

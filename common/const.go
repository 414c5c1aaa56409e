package common

// DefaultPort is the TCP port the daemon listens on unless configured
// otherwise.
const DefaultPort = 7420

// JSON-RPC method names.
const (
	MethodStart    = "transport.start"
	MethodStop     = "transport.stop"
	MethodUpdate   = "transport.update"
	MethodSnapshot = "transport.snapshot"
	MethodVersion  = "system.getVersion"
)

// Push notification names sent to JSON-RPC WebSocket clients.
const (
	NotifyTick     = "tick"
	NotifySnapshot = "snapshot"
	NotifyFatal    = "fatal"
)

// HTTP routes served by the daemon.
const (
	RouteSocket    = "/ws"
	RouteRPC       = "/jsonrpc"
	RouteRPCSocket = "/jsonrpc/ws"
	RouteSnapshot  = "/snapshot"
)

// Package daemon provides the lifecycle runner for the metroloop daemon.
// It owns the listening socket, runs the server on it, and coordinates
// graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/netutil"
)

// Sentinel errors for the daemon runner.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running daemon.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning is returned when Shutdown() is called on a stopped daemon.
	ErrNotRunning = errors.New("daemon is not running")

	// ErrShutdownTimeout is returned when shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// Config holds the configuration for the daemon runner.
type Config struct {
	// Host is the interface to bind. Empty binds all interfaces.
	Host string

	// Port is the TCP port to listen on.
	// Use 0 for an ephemeral port.
	Port int

	// MaxConns caps concurrently accepted connections. Zero means no cap.
	MaxConns int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// A zero value means no timeout.
	ShutdownTimeout time.Duration
}

// Dependencies holds the external dependencies for the daemon runner.
type Dependencies struct {
	// ListenerFactory creates network listeners.
	// If nil, net.Listen is used.
	ListenerFactory func(network, address string) (net.Listener, error)

	// Serve runs on the listener until it is closed. If nil, the runner
	// only holds the listener open.
	Serve func(ctx context.Context, l net.Listener) error

	// OnListen, if set, is called with the bound address before Serve runs.
	OnListen func(addr net.Addr)

	// ShutdownFunc is called during shutdown to clean up resources.
	// If nil, no cleanup function is called.
	ShutdownFunc func() error
}

// Runner manages the daemon lifecycle.
type Runner struct {
	config   *Config
	deps     *Dependencies
	running  bool
	mu       sync.Mutex
	cancel   context.CancelFunc
	listener net.Listener
}

// New creates a new daemon runner with the given configuration and dependencies.
// A nil config listens on an ephemeral port on all interfaces.
func New(config *Config, deps *Dependencies) *Runner {
	if config == nil {
		config = &Config{}
	}
	if deps == nil {
		deps = &Dependencies{}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	return &Runner{
		config: config,
		deps:   deps,
	}
}

// Config returns the runner's configuration.
func (r *Runner) Config() *Config {
	return r.config
}

// Addr returns the bound address, or nil when the runner is not running.
func (r *Runner) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Start binds the listener, runs Serve on it and blocks until the context
// is canceled, Shutdown is called, or Serve returns.
// Returns ErrAlreadyRunning if the daemon is already started.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}

	ctx, r.cancel = context.WithCancel(ctx)

	listener, err := r.deps.ListenerFactory("tcp", listenAddress(r.config.Host, r.config.Port))
	if err != nil {
		r.cancel()
		r.mu.Unlock()
		return err
	}
	if r.config.MaxConns > 0 {
		listener = netutil.LimitListener(listener, r.config.MaxConns)
	}
	r.listener = listener
	r.running = true
	r.mu.Unlock()

	if r.deps.OnListen != nil {
		r.deps.OnListen(listener.Addr())
	}

	serveErr := make(chan error, 1)
	if r.deps.Serve != nil {
		go func() {
			serveErr <- r.deps.Serve(ctx, listener)
		}()
	}

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-serveErr:
	}

	r.stop()
	return err
}

// listenAddress returns the host:port string to bind.
// Port 0 results in an ephemeral port assignment.
func listenAddress(host string, port int) string {
	if port < 0 {
		port = 0
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// stop marks the runner stopped, cancels Serve's context and closes the
// listener. It is safe to call more than once.
func (r *Runner) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = false
	if r.cancel != nil {
		r.cancel()
	}
	if r.listener != nil {
		_ = r.listener.Close()
		r.listener = nil
	}
}

// Shutdown gracefully stops the daemon.
// Returns ErrNotRunning if the daemon is not running.
// Returns ErrShutdownTimeout if the shutdown function exceeds the configured timeout.
func (r *Runner) Shutdown() error {
	if !r.IsRunning() {
		return ErrNotRunning
	}

	var err error
	if fn := r.deps.ShutdownFunc; fn != nil {
		if r.config.ShutdownTimeout > 0 {
			err = r.executeWithTimeout(fn, r.config.ShutdownTimeout)
		} else {
			err = fn()
		}
	}

	r.stop()
	return err
}

// executeWithTimeout runs a function with a timeout.
// Returns ErrShutdownTimeout if the function exceeds the timeout.
func (r *Runner) executeWithTimeout(fn func() error, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrShutdownTimeout
	}
}

// IsRunning returns true if the daemon is currently running.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

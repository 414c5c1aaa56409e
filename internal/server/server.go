// Package server exposes a transport scheduler to consumers over HTTP:
// the raw tagged message protocol on a WebSocket, JSON-RPC 2.0 over HTTP
// and WebSocket, and a polling snapshot endpoint.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/metroloop/metroloop/internal/protocol"
	"github.com/metroloop/metroloop/internal/transport"
	"github.com/metroloop/metroloop/pkg/logger"
)

// DefaultSnapshotDelay is how long snapshot pushes are held back so that a
// burst of commands produces a single push.
const DefaultSnapshotDelay = 50 * time.Millisecond

// Transport is the scheduler as seen by the server.
type Transport interface {
	Dispatch(cmd protocol.Command) error
	Snapshot() transport.Snapshot
	Events() <-chan protocol.Event
}

// Config configures a Server.
type Config struct {
	// Secret, if set, must be presented as a bearer token (or ?token=) on
	// every request.
	Secret string
	// AllowedOrigins lists browser origins allowed to connect. Entries may
	// contain one "*" wildcard. Empty means local pages only.
	AllowedOrigins []string
	// Defaults fill in fields a transport.start call leaves out.
	Defaults transport.Settings

	Version   string
	Commit    string
	BuildType string

	SnapshotDelay time.Duration
	Logger        logger.Logger
}

// Server fans scheduler events out to connected consumers and turns their
// requests into scheduler commands.
type Server struct {
	t        Transport
	cfg      Config
	log      logger.Logger
	pool     *Pool
	rpc      *RPCServer
	notifier *RPCNotifier
	handler  http.Handler
	debounce func(func())

	// ctx is cancelled by Shutdown and ends every live socket.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	server    *http.Server
	closeOnce sync.Once
}

// New builds a server for t. Call Run to start delivering events.
func New(t Transport, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.SnapshotDelay <= 0 {
		cfg.SnapshotDelay = DefaultSnapshotDelay
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = defaultOrigins
	}
	if cfg.Defaults == (transport.Settings{}) {
		cfg.Defaults = transport.DefaultSettings()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		t:        t,
		cfg:      cfg,
		log:      cfg.Logger,
		pool:     NewPool(cfg.Logger),
		notifier: NewRPCNotifier(cfg.Logger),
		debounce: debounce.New(cfg.SnapshotDelay),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.rpc = NewRPCServer(s, &RPCConfig{
		Defaults:  cfg.Defaults,
		Version:   cfg.Version,
		Commit:    cfg.Commit,
		BuildType: cfg.BuildType,
	})
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.handler }

// Run forwards scheduler events to consumers until ctx is done, Shutdown
// is called or the event stream ends.
func (s *Server) Run(ctx context.Context) {
	events := s.t.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.log.Warning("event stream closed")
				return
			}
			s.publish(ev)
		}
	}
}

// Serve accepts connections on l until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.ToStdLogger(s.log),
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("listening on %s", l.Addr())
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes every consumer connection and stops the HTTP server,
// waiting for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.pool.CloseAll()
		s.rpc.Close()
	})

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// dispatch applies cmd and schedules a snapshot push when it succeeds.
func (s *Server) dispatch(cmd protocol.Command) error {
	if err := s.t.Dispatch(cmd); err != nil {
		return err
	}
	s.debounce(s.pushSnapshot)
	return nil
}

func (s *Server) snapshot() transport.Snapshot {
	return s.t.Snapshot()
}

func (s *Server) pushSnapshot() {
	s.publish(protocol.Snapshot{Snapshot: s.t.Snapshot()})
}

// publish sends ev to raw socket subscribers and, as a notification, to
// JSON-RPC WebSocket clients.
func (s *Server) publish(ev protocol.Event) {
	s.pool.Broadcast(ev)
	switch e := ev.(type) {
	case protocol.Tick:
		s.notifier.Tick(e)
	case protocol.Snapshot:
		s.notifier.Snapshot(e.Snapshot)
	case protocol.Fatal:
		s.log.Error("transport failed: %s", e.Error)
		s.notifier.Fatal(e)
	case protocol.Rejected:
		// Rejections are only ever sent to the client that caused them.
	}
}

// connContext returns a context for a long-lived connection that ends with
// the request or with Shutdown, whichever comes first.
func (s *Server) connContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

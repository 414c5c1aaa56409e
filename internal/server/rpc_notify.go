package server

import (
	"context"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/metroloop/metroloop/common"
	"github.com/metroloop/metroloop/internal/protocol"
	"github.com/metroloop/metroloop/internal/transport"
	"github.com/metroloop/metroloop/pkg/logger"
)

// pushTimeout is the deadline of each notification.
const pushTimeout = 2 * time.Second

type notification struct {
	method string
	params any
}

// rpcSession is one JSON-RPC WebSocket client. Its pushes are queued so a
// stalled client only delays itself.
type rpcSession struct {
	srv    *jrpc2.Server
	pushes *protocol.Queue[notification]
}

// RPCNotifier pushes transport events to every JSON-RPC WebSocket session.
type RPCNotifier struct {
	mu       sync.RWMutex
	sessions map[string]*rpcSession
	log      logger.Logger
}

func NewRPCNotifier(l logger.Logger) *RPCNotifier {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &RPCNotifier{
		sessions: make(map[string]*rpcSession),
		log:      l,
	}
}

// Register subscribes the session id, served by srv, to pushes.
func (n *RPCNotifier) Register(id string, srv *jrpc2.Server) {
	sess := &rpcSession{srv: srv, pushes: protocol.NewQueue[notification]()}
	n.mu.Lock()
	old := n.sessions[id]
	n.sessions[id] = sess
	n.mu.Unlock()
	if old != nil {
		old.pushes.Discard()
	}
	go n.deliver(id, sess)
}

func (n *RPCNotifier) Unregister(id string) {
	n.mu.Lock()
	sess, ok := n.sessions[id]
	delete(n.sessions, id)
	n.mu.Unlock()
	if ok {
		sess.pushes.Discard()
	}
}

// Tick pushes a scheduled beat.
func (n *RPCNotifier) Tick(t protocol.Tick) {
	n.push(common.NotifyTick, t)
}

// Snapshot pushes the current transport settings and position.
func (n *RPCNotifier) Snapshot(s transport.Snapshot) {
	n.push(common.NotifySnapshot, s)
}

// Fatal pushes the scheduler's terminal failure.
func (n *RPCNotifier) Fatal(f protocol.Fatal) {
	n.push(common.NotifyFatal, f)
}

// push queues a notification for every session. It never blocks.
func (n *RPCNotifier) push(method string, params any) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sess := range n.sessions {
		sess.pushes.Push(notification{method: method, params: params})
	}
}

// deliver sends a session's queued notifications in order and drops the
// session once it can no longer receive.
func (n *RPCNotifier) deliver(id string, sess *rpcSession) {
	for p := range sess.pushes.Out() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		err := sess.srv.Notify(ctx, p.method, p.params)
		cancel()
		if err == nil {
			continue
		}
		n.log.Debug("rpc socket %s: push %s failed: %v", id, p.method, err)
		n.mu.Lock()
		if n.sessions[id] == sess {
			delete(n.sessions, id)
		}
		n.mu.Unlock()
		sess.pushes.Discard()
		return
	}
}

// Count returns the number of subscribed sessions.
func (n *RPCNotifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.sessions)
}

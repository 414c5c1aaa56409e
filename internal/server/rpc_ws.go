package server

import (
	"context"
	"net/http"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/google/uuid"
	"github.com/metroloop/metroloop/common"
)

// wsChannel adapts a coder/websocket.Conn to the jrpc2 Channel interface.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

// Send writes a JSON-RPC message to the WebSocket connection.
func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

// Recv reads a JSON-RPC message from the WebSocket connection.
func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

// Close shuts down the WebSocket connection with a normal closure status.
func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// handleRPCSocket serves JSON-RPC over a WebSocket. The client also
// receives tick, snapshot and fatal notifications.
func (s *Server) handleRPCSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, &cws.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins),
	})
	if err != nil {
		s.log.Warning("rpc socket: accept failed: %v", err)
		return
	}
	ctx, cancel := s.connContext(r)
	defer cancel()

	id := uuid.NewString()
	s.log.Info("rpc socket %s: connected from %s", id, r.RemoteAddr)

	srv := jrpc2.NewServer(s.rpc.methods, &jrpc2.ServerOptions{AllowPush: true}).
		Start(&wsChannel{conn: conn, ctx: ctx})
	s.notifier.Register(id, srv)
	defer s.notifier.Unregister(id)

	if err := srv.Notify(ctx, common.NotifySnapshot, s.snapshot()); err != nil {
		s.log.Warning("rpc socket %s: initial snapshot: %v", id, err)
	}

	stop := context.AfterFunc(ctx, srv.Stop)
	defer stop()
	if err := srv.Wait(); err != nil && ctx.Err() == nil && cws.CloseStatus(err) == -1 {
		s.log.Debug("rpc socket %s: %v", id, err)
	}
	s.log.Info("rpc socket %s: disconnected", id)
}

package server

import (
	"context"
	"errors"
	"net/http"

	cws "github.com/coder/websocket"
	"github.com/metroloop/metroloop/internal/protocol"
)

// handleSocket serves the raw tagged protocol: every text frame received
// is one command, every frame sent is one event.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, &cws.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins),
	})
	if err != nil {
		s.log.Warning("socket: accept failed: %v", err)
		return
	}
	ctx, cancel := s.connContext(r)
	defer cancel()

	sub := s.pool.Add()
	defer s.pool.Remove(sub.ID)
	s.log.Info("socket %s: connected from %s", sub.ID, r.RemoteAddr)

	sub.Send(protocol.Snapshot{Snapshot: s.snapshot()})
	go s.writeEvents(ctx, cancel, conn, sub)

	err = s.readCommands(ctx, conn, sub)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		_ = conn.Close(cws.StatusGoingAway, "server shutting down")
	case cws.CloseStatus(err) == cws.StatusNormalClosure, cws.CloseStatus(err) == cws.StatusGoingAway:
	default:
		s.log.Warning("socket %s: %v", sub.ID, err)
		_ = conn.Close(cws.StatusInternalError, "")
	}
	s.log.Info("socket %s: disconnected", sub.ID)
}

func (s *Server) readCommands(ctx context.Context, conn *cws.Conn, sub *Subscriber) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if typ != cws.MessageText {
			sub.Send(rejection(&protocol.ProtocolError{Reason: "binary frames are not supported"}))
			continue
		}
		cmd, err := protocol.Decode(data)
		if err != nil {
			s.log.Warning("socket %s: %v", sub.ID, err)
			sub.Send(rejection(err))
			continue
		}
		if err := s.dispatch(cmd); err != nil {
			s.log.Debug("socket %s: %s rejected: %v", sub.ID, cmd.Tag(), err)
			sub.Send(rejection(err))
		}
	}
}

func (s *Server) writeEvents(ctx context.Context, cancel context.CancelFunc, conn *cws.Conn, sub *Subscriber) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := protocol.Encode(ev)
			if err != nil {
				s.log.Error("socket %s: encode %s: %v", sub.ID, ev.Tag(), err)
				continue
			}
			if err := conn.Write(ctx, cws.MessageText, data); err != nil {
				return
			}
		}
	}
}

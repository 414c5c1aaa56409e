package server

import (
	"errors"

	"github.com/creachadair/jrpc2"
	"github.com/metroloop/metroloop/internal/protocol"
	"github.com/metroloop/metroloop/internal/scheduler"
	"github.com/metroloop/metroloop/internal/transport"
)

// Custom JSON-RPC error codes for transport operations.
const (
	codeInvalidParams    = jrpc2.Code(-32602)
	codeTimerUnavailable = jrpc2.Code(-32010)
	codeTransportClosed  = jrpc2.Code(-32011)
)

// rpcError maps a scheduler error onto a JSON-RPC error.
func rpcError(err error) error {
	var verr *transport.ValidationError
	var perr *protocol.ProtocolError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verr), errors.As(err, &perr):
		return &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, scheduler.ErrTimerUnavailable):
		return &jrpc2.Error{Code: codeTimerUnavailable, Message: err.Error()}
	case errors.Is(err, scheduler.ErrClosed):
		return &jrpc2.Error{Code: codeTransportClosed, Message: err.Error()}
	default:
		return err
	}
}

// rejection builds the error event sent back over the raw socket.
func rejection(err error) protocol.Rejected {
	var verr *transport.ValidationError
	var perr *protocol.ProtocolError
	kind := protocol.KindUnavailable
	switch {
	case errors.As(err, &verr):
		kind = protocol.KindValidation
	case errors.As(err, &perr):
		kind = protocol.KindProtocol
	}
	return protocol.Rejected{Kind: kind, Error: err.Error()}
}

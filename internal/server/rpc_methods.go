package server

import (
	"context"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/metroloop/metroloop/common"
	"github.com/metroloop/metroloop/internal/protocol"
	"github.com/metroloop/metroloop/internal/transport"
)

// RPCConfig holds configuration for the JSON-RPC endpoints.
type RPCConfig struct {
	Defaults  transport.Settings // Settings for fields transport.start omits
	Version   string             // Daemon version
	Commit    string             // Git commit
	BuildType string             // Build type
}

// controller is the part of Server the RPC methods drive.
type controller interface {
	dispatch(cmd protocol.Command) error
	snapshot() transport.Snapshot
}

// RPCServer holds the JSON-RPC 2.0 method table and its HTTP bridge. The
// same table serves WebSocket clients.
type RPCServer struct {
	methods   handler.Map
	bridge    jhttp.Bridge
	ctl       controller
	defaults  transport.Settings
	version   string
	commit    string
	buildType string
}

// NewRPCServer creates an RPCServer driving ctl.
func NewRPCServer(ctl controller, cfg *RPCConfig) *RPCServer {
	rs := &RPCServer{
		ctl:       ctl,
		defaults:  cfg.Defaults,
		version:   cfg.Version,
		commit:    cfg.Commit,
		buildType: cfg.BuildType,
	}

	rs.methods = handler.Map{
		common.MethodVersion:  handler.New(rs.systemGetVersion),
		common.MethodStart:    handler.New(rs.transportStart),
		common.MethodStop:     handler.New(rs.transportStop),
		common.MethodUpdate:   handler.New(rs.transportUpdate),
		common.MethodSnapshot: handler.New(rs.transportSnapshot),
	}

	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	return rs
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*common.VersionInfo, error) {
	return &common.VersionInfo{
		Version:   rs.version,
		Commit:    rs.commit,
		BuildType: rs.buildType,
	}, nil
}

// transportStart starts or restarts playback. Omitted fields take the
// configured defaults.
func (rs *RPCServer) transportStart(_ context.Context, p *common.StartParams) (*transport.Snapshot, error) {
	settings := rs.defaults
	if p != nil {
		if p.BPM != nil {
			settings.Tempo.BPM = *p.BPM
		}
		if p.BeatsPerMeasure != nil {
			settings.Meter.BeatsPerMeasure = *p.BeatsPerMeasure
		}
		if p.BeatUnit != nil {
			settings.Meter.BeatUnit = *p.BeatUnit
		}
		if p.MeasuresPerLoop != nil {
			settings.Loop.MeasuresPerLoop = *p.MeasuresPerLoop
		}
	}
	return rs.apply(protocol.NewStart(settings))
}

func (rs *RPCServer) transportStop(_ context.Context) (*transport.Snapshot, error) {
	return rs.apply(protocol.Stop{})
}

func (rs *RPCServer) transportUpdate(_ context.Context, p *common.UpdateParams) (*transport.Snapshot, error) {
	if p == nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing params"}
	}
	u := transport.Update{
		BPM:             p.BPM,
		BeatsPerMeasure: p.BeatsPerMeasure,
		BeatUnit:        p.BeatUnit,
		MeasuresPerLoop: p.MeasuresPerLoop,
	}
	if u.IsEmpty() {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "nothing to update"}
	}
	return rs.apply(protocol.NewUpdate(u))
}

func (rs *RPCServer) transportSnapshot(_ context.Context) (*transport.Snapshot, error) {
	snap := rs.ctl.snapshot()
	return &snap, nil
}

func (rs *RPCServer) apply(cmd protocol.Command) (*transport.Snapshot, error) {
	if err := rs.ctl.dispatch(cmd); err != nil {
		return nil, rpcError(err)
	}
	snap := rs.ctl.snapshot()
	return &snap, nil
}

// Close shuts down the jrpc2 bridge, releasing internal goroutines.
func (rs *RPCServer) Close() {
	rs.bridge.Close()
}

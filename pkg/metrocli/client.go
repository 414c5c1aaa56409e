// Package metrocli is a client for the metroloop daemon's JSON-RPC
// WebSocket endpoint.
package metrocli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/metroloop/metroloop/common"
	"github.com/metroloop/metroloop/internal/protocol"
	"github.com/metroloop/metroloop/internal/transport"
)

// URL returns the JSON-RPC WebSocket address of a daemon.
func URL(host string, port int) string {
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + common.RouteRPCSocket
}

// Options configures Dial. Callbacks run on the client's receive goroutine
// and must not block.
type Options struct {
	// Token is sent as a bearer token when non-empty.
	Token string

	OnTick     func(protocol.Tick)
	OnSnapshot func(transport.Snapshot)
	OnFatal    func(error string)
}

// Client talks to one daemon.
type Client struct {
	rpc    *jrpc2.Client
	ch     *wsChannel
	cancel context.CancelFunc
	opts   Options
}

// Dial connects to the daemon at url, usually built with URL.
func Dial(ctx context.Context, url string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	dialOpts := &cws.DialOptions{}
	if opts.Token != "" {
		dialOpts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + opts.Token}}
	}
	conn, _, err := cws.Dial(ctx, url, dialOpts)
	if err != nil {
		return nil, fmt.Errorf("error connecting to daemon: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ch:     &wsChannel{conn: conn, ctx: connCtx, done: make(chan struct{})},
		cancel: cancel,
		opts:   *opts,
	}
	c.rpc = jrpc2.NewClient(c.ch, &jrpc2.ClientOptions{OnNotify: c.notify})
	return c, nil
}

func (c *Client) notify(req *jrpc2.Request) {
	switch req.Method() {
	case common.NotifyTick:
		if c.opts.OnTick == nil {
			return
		}
		var tick protocol.Tick
		if err := req.UnmarshalParams(&tick); err == nil {
			c.opts.OnTick(tick)
		}
	case common.NotifySnapshot:
		if c.opts.OnSnapshot == nil {
			return
		}
		var snap transport.Snapshot
		if err := req.UnmarshalParams(&snap); err == nil {
			c.opts.OnSnapshot(snap)
		}
	case common.NotifyFatal:
		if c.opts.OnFatal == nil {
			return
		}
		var fatal protocol.Fatal
		if err := req.UnmarshalParams(&fatal); err == nil {
			c.opts.OnFatal(fatal.Error)
		}
	}
}

// Start starts or restarts playback. Nil fields take the daemon's defaults.
func (c *Client) Start(ctx context.Context, p common.StartParams) (transport.Snapshot, error) {
	return c.call(ctx, common.MethodStart, &p)
}

// Stop halts playback.
func (c *Client) Stop(ctx context.Context) (transport.Snapshot, error) {
	return c.call(ctx, common.MethodStop, nil)
}

// Update changes tempo, meter or loop length without restarting.
func (c *Client) Update(ctx context.Context, p common.UpdateParams) (transport.Snapshot, error) {
	return c.call(ctx, common.MethodUpdate, &p)
}

// Snapshot returns the daemon's current transport view.
func (c *Client) Snapshot(ctx context.Context) (transport.Snapshot, error) {
	return c.call(ctx, common.MethodSnapshot, nil)
}

// Version returns the daemon's build information.
func (c *Client) Version(ctx context.Context) (common.VersionInfo, error) {
	var v common.VersionInfo
	err := c.rpc.CallResult(ctx, common.MethodVersion, nil, &v)
	return v, err
}

func (c *Client) call(ctx context.Context, method string, params any) (transport.Snapshot, error) {
	var snap transport.Snapshot
	err := c.rpc.CallResult(ctx, method, params, &snap)
	return snap, err
}

// Done is closed once the connection to the daemon is lost.
func (c *Client) Done() <-chan struct{} { return c.ch.done }

// Close disconnects from the daemon.
func (c *Client) Close() error {
	err := c.rpc.Close()
	c.cancel()
	return err
}

// wsChannel adapts a coder/websocket.Conn to the jrpc2 Channel interface.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
	done chan struct{}
	once sync.Once
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		c.once.Do(func() { close(c.done) })
	}
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

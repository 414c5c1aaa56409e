package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/metroloop/metroloop/common"
	"github.com/metroloop/metroloop/internal/protocol"
	"github.com/metroloop/metroloop/internal/scheduler"
	"github.com/metroloop/metroloop/internal/transport"
	"github.com/metroloop/metroloop/pkg/logger"
)

type testDaemon struct {
	clock *scheduler.ManualClock
	sched *scheduler.Scheduler
	srv   *Server
	http  *httptest.Server
}

// newTestDaemon wires a scheduler on a manual clock to a Server behind an
// httptest server.
func newTestDaemon(t *testing.T, secret string) *testDaemon {
	t.Helper()
	clk := scheduler.NewManualClock()
	sched, err := scheduler.New(context.Background(), scheduler.Config{Clock: clk})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	srv := New(sched, Config{
		Secret:        secret,
		Version:       "1.0.0",
		Commit:        "abc123",
		SnapshotDelay: 5 * time.Millisecond,
		Logger:        logger.NewNopLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	hs := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		cancel()
		_ = srv.Shutdown(context.Background())
		hs.Close()
		sched.Close()
	})
	return &testDaemon{clock: clk, sched: sched, srv: srv, http: hs}
}

func (d *testDaemon) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(d.http.URL, "http") + path
}

// rpcCall sends a JSON-RPC request to the handler and returns the parsed response.
func rpcCall(t *testing.T, h http.Handler, method string, params any, authToken string) (int, map[string]any) {
	t.Helper()
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		reqBody["params"] = params
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, common.RouteRPC, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	body, _ := io.ReadAll(rr.Result().Body)
	var result map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			t.Fatalf("unmarshal response: %v (body: %s)", err, string(body))
		}
	}
	return rr.Code, result
}

func rpcResult(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	if e, ok := resp["error"]; ok {
		t.Fatalf("unexpected error: %v", e)
	}
	res, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %v", resp)
	}
	return res
}

func rpcErrorCode(t *testing.T, resp map[string]any) float64 {
	t.Helper()
	e, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", resp)
	}
	return e["code"].(float64)
}

func TestSnapshotEndpoint(t *testing.T) {
	d := newTestDaemon(t, "")

	resp, err := http.Get(d.http.URL + common.RouteSnapshot)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snap transport.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.BPM != 120 || snap.BeatsPerMeasure != 4 || snap.MeasuresPerLoop != 2 || snap.Playing {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestRoutes_RequireSecret(t *testing.T) {
	d := newTestDaemon(t, "s3cret")

	resp, err := http.Get(d.http.URL + common.RouteSnapshot)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without token: status %d, want 401", resp.StatusCode)
	}

	resp, err = http.Get(d.http.URL + common.RouteSnapshot + "?token=s3cret")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with token: status %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, wsResp, err := cws.Dial(ctx, d.wsURL(common.RouteSocket), nil)
	if err == nil {
		t.Fatal("expected unauthorized socket dial to fail")
	}
	if wsResp != nil && wsResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", wsResp.StatusCode)
	}
}

func TestRPC_TransportMethods(t *testing.T) {
	d := newTestDaemon(t, "tok")
	h := d.srv.Handler()

	code, resp := rpcCall(t, h, common.MethodStart, map[string]any{"bpm": 90}, "tok")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	res := rpcResult(t, resp)
	if res["bpm"] != 90.0 || res["beatsPerMeasure"] != 4.0 || res["playing"] != true {
		t.Errorf("start result = %v", res)
	}

	_, resp = rpcCall(t, h, common.MethodUpdate, map[string]any{"beatsPerMeasure": 7, "beatUnit": 8}, "tok")
	res = rpcResult(t, resp)
	if res["beatsPerMeasure"] != 7.0 || res["beatUnit"] != 8.0 || res["bpm"] != 90.0 {
		t.Errorf("update result = %v", res)
	}

	_, resp = rpcCall(t, h, common.MethodSnapshot, nil, "tok")
	if res = rpcResult(t, resp); res["playing"] != true {
		t.Errorf("snapshot = %v", res)
	}

	_, resp = rpcCall(t, h, common.MethodStop, nil, "tok")
	if res = rpcResult(t, resp); res["playing"] != false {
		t.Errorf("stop result = %v", res)
	}

	_, resp = rpcCall(t, h, common.MethodVersion, nil, "tok")
	if res = rpcResult(t, resp); res["version"] != "1.0.0" || res["commit"] != "abc123" {
		t.Errorf("version = %v", res)
	}
}

func TestRPC_InvalidParams(t *testing.T) {
	d := newTestDaemon(t, "")
	h := d.srv.Handler()

	tests := []struct {
		name   string
		method string
		params any
	}{
		{"negative bpm", common.MethodStart, map[string]any{"bpm": -5}},
		{"odd beat unit", common.MethodStart, map[string]any{"beatUnit": 3}},
		{"empty update", common.MethodUpdate, map[string]any{}},
		{"zero loop", common.MethodUpdate, map[string]any{"measuresPerLoop": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp := rpcCall(t, h, tt.method, tt.params, "")
			if code := rpcErrorCode(t, resp); code != float64(codeInvalidParams) {
				t.Errorf("code = %v, want %d", code, codeInvalidParams)
			}
		})
	}
	if d.sched.Snapshot().Playing {
		t.Error("rejected start left the transport playing")
	}
}

func TestRPC_TimerUnavailable(t *testing.T) {
	d := newTestDaemon(t, "")
	d.clock.FailTimers(true)

	_, resp := rpcCall(t, d.srv.Handler(), common.MethodStart, nil, "")
	if code := rpcErrorCode(t, resp); code != float64(codeTimerUnavailable) {
		t.Errorf("code = %v, want %d", code, codeTimerUnavailable)
	}
}

func dialSocket(t *testing.T, d *testDaemon) *cws.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := cws.Dial(ctx, d.wsURL(common.RouteSocket), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(cws.StatusNormalClosure, "") })
	return conn
}

func sendCommand(t *testing.T, conn *cws.Conn, raw string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, cws.MessageText, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads events until match returns true.
func readUntil(t *testing.T, conn *cws.Conn, match func(protocol.Event) bool) protocol.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if match(ev) {
			return ev
		}
	}
}

func TestSocket_RawProtocol(t *testing.T) {
	d := newTestDaemon(t, "")
	conn := dialSocket(t, d)

	first := readUntil(t, conn, func(protocol.Event) bool { return true })
	if snap, ok := first.(protocol.Snapshot); !ok || snap.Playing {
		t.Fatalf("expected initial stopped snapshot, got %#v", first)
	}

	sendCommand(t, conn, `{"message":"start","bpm":120,"beatsPerMeasure":4,"measuresPerLoop":2}`)
	var sawTick, sawPlaying bool
	readUntil(t, conn, func(ev protocol.Event) bool {
		switch e := ev.(type) {
		case protocol.Tick:
			if e.TickIndex != 0 || !e.Downbeat {
				t.Errorf("first tick = %+v", e)
			}
			sawTick = true
		case protocol.Snapshot:
			sawPlaying = sawPlaying || e.Playing
		}
		return sawTick && sawPlaying
	})

	sendCommand(t, conn, `{"message":"pause"}`)
	ev := readUntil(t, conn, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.Rejected)
		return ok
	})
	if r := ev.(protocol.Rejected); r.Kind != protocol.KindProtocol {
		t.Errorf("unknown tag rejected as %q", r.Kind)
	}

	sendCommand(t, conn, `{"message":"update","bpm":-5}`)
	ev = readUntil(t, conn, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.Rejected)
		return ok
	})
	if r := ev.(protocol.Rejected); r.Kind != protocol.KindValidation || !strings.Contains(r.Error, "bpm") {
		t.Errorf("bad bpm rejected as %+v", r)
	}
	if d.sched.Snapshot().BPM != 120 {
		t.Error("rejected update changed the tempo")
	}
}

func TestSocket_TicksReachEverySubscriber(t *testing.T) {
	d := newTestDaemon(t, "")
	a := dialSocket(t, d)
	b := dialSocket(t, d)

	// Both connections are registered once their initial snapshot arrives.
	for _, c := range []*cws.Conn{a, b} {
		readUntil(t, c, func(protocol.Event) bool { return true })
	}

	if err := d.sched.Start(transport.DefaultSettings()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, c := range []*cws.Conn{a, b} {
		ev := readUntil(t, c, func(ev protocol.Event) bool {
			_, ok := ev.(protocol.Tick)
			return ok
		})
		if ev.(protocol.Tick).TickIndex != 0 {
			t.Errorf("got %+v, want tick 0", ev)
		}
	}
}

func TestServer_ShutdownClosesSockets(t *testing.T) {
	clk := scheduler.NewManualClock()
	sched, err := scheduler.New(context.Background(), scheduler.Config{Clock: clk})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	defer sched.Close()
	srv := New(sched, Config{})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(l) }()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := cws.Dial(ctx, "ws://"+l.Addr().String()+common.RouteSocket, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("initial read: %v", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("socket still open after shutdown")
	}
	if err := <-served; err != nil {
		t.Errorf("Serve returned %v", err)
	}
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"http://localhost:*", "https://app.example.com/"})
	want := []string{"localhost:*", "app.example.com"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pattern %d = %q, want %q", i, got[i], want[i])
		}
	}
	if got := originPatterns([]string{"*"}); len(got) != 1 || got[0] != "*" {
		t.Errorf("wildcard = %v", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	d := newTestDaemon(t, "s3cret")

	req := httptest.NewRequest(http.MethodOptions, common.RouteRPC, nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	d.srv.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, common.RouteRPC, nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	d.srv.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

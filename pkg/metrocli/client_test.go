package metrocli

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/metroloop/metroloop/common"
	"github.com/metroloop/metroloop/internal/protocol"
	"github.com/metroloop/metroloop/internal/scheduler"
	"github.com/metroloop/metroloop/internal/server"
	"github.com/metroloop/metroloop/internal/transport"
)

type harness struct {
	clock *scheduler.ManualClock
	srv   *server.Server
	url   string
}

func newHarness(t *testing.T, secret string) *harness {
	t.Helper()
	clk := scheduler.NewManualClock()
	sched, err := scheduler.New(context.Background(), scheduler.Config{Clock: clk})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	srv := server.New(sched, server.Config{Secret: secret, Version: "9.9.9", SnapshotDelay: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		_ = srv.Shutdown(context.Background())
		hs.Close()
		sched.Close()
	})
	return &harness{
		clock: clk,
		srv:   srv,
		url:   "ws" + strings.TrimPrefix(hs.URL, "http") + common.RouteRPCSocket,
	}
}

func TestURL(t *testing.T) {
	if got := URL("127.0.0.1", 7420); got != "ws://127.0.0.1:7420/jsonrpc/ws" {
		t.Errorf("URL = %q", got)
	}
	if got := URL("::1", 80); got != "ws://[::1]:80/jsonrpc/ws" {
		t.Errorf("URL = %q", got)
	}
}

func TestClient_Methods(t *testing.T) {
	h := newHarness(t, "tok")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ticks := make(chan protocol.Tick, 16)
	snaps := make(chan transport.Snapshot, 16)
	c, err := Dial(ctx, h.url, &Options{
		Token:      "tok",
		OnTick:     func(tk protocol.Tick) { ticks <- tk },
		OnSnapshot: func(s transport.Snapshot) { snaps <- s },
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	select {
	case s := <-snaps:
		if s.Playing {
			t.Errorf("initial snapshot playing: %+v", s)
		}
	case <-ctx.Done():
		t.Fatal("no initial snapshot")
	}

	v, err := c.Version(ctx)
	if err != nil || v.Version != "9.9.9" {
		t.Fatalf("Version = %+v, %v", v, err)
	}

	bpm, beats, measures := 100.0, 3, 1
	snap, err := c.Start(ctx, common.StartParams{BPM: &bpm, BeatsPerMeasure: &beats, MeasuresPerLoop: &measures})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !snap.Playing || snap.BPM != 100 || snap.BeatsPerMeasure != 3 || snap.BeatUnit != 4 {
		t.Errorf("Start snapshot = %+v", snap)
	}
	select {
	case tk := <-ticks:
		if tk.TickIndex != 0 || !tk.Downbeat {
			t.Errorf("first tick = %+v", tk)
		}
	case <-ctx.Done():
		t.Fatal("no tick notification")
	}

	newBPM := 60.0
	if snap, err = c.Update(ctx, common.UpdateParams{BPM: &newBPM}); err != nil || snap.BPM != 60 {
		t.Fatalf("Update = %+v, %v", snap, err)
	}
	if snap, err = c.Snapshot(ctx); err != nil || !snap.Playing {
		t.Fatalf("Snapshot = %+v, %v", snap, err)
	}
	if snap, err = c.Stop(ctx); err != nil || snap.Playing {
		t.Fatalf("Stop = %+v, %v", snap, err)
	}
}

func TestClient_ValidationError(t *testing.T) {
	h := newHarness(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, h.url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	bpm := -5.0
	_, err = c.Start(ctx, common.StartParams{BPM: &bpm})
	var rerr *jrpc2.Error
	if !errors.As(err, &rerr) || rerr.Code != jrpc2.Code(-32602) {
		t.Fatalf("expected invalid params error, got %v", err)
	}
}

func TestClient_FatalNotification(t *testing.T) {
	h := newHarness(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fatal := make(chan string, 1)
	c, err := Dial(ctx, h.url, &Options{OnFatal: func(e string) { fatal <- e }})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	h.clock.FailTimers(true)
	if _, err := c.Start(ctx, common.StartParams{}); err == nil {
		t.Fatal("expected start to fail")
	}
	select {
	case e := <-fatal:
		if e != protocol.FatalTimerUnavailable {
			t.Errorf("fatal error = %q", e)
		}
	case <-ctx.Done():
		t.Fatal("no fatal notification")
	}
}

func TestDial_Unauthorized(t *testing.T) {
	h := newHarness(t, "tok")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Dial(ctx, h.url, &Options{Token: "wrong"}); err == nil {
		t.Fatal("expected dial with wrong token to fail")
	}
}

func TestClient_DoneAfterShutdown(t *testing.T) {
	h := newHarness(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, h.url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if _, err := c.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	_ = h.srv.Shutdown(ctx)
	select {
	case <-c.Done():
	case <-ctx.Done():
		t.Fatal("client did not notice shutdown")
	}
}

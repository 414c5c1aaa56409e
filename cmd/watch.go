package cmd

import (
	"fmt"
	"sync"
	"time"

	cmdcommon "github.com/metroloop/metroloop/cmd/common"
	"github.com/metroloop/metroloop/internal/protocol"
	"github.com/metroloop/metroloop/internal/transport"
	"github.com/metroloop/metroloop/pkg/metrocli"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
)

// beatView drives the watch bars from daemon notifications. Ticks arrive
// ahead of their scheduled time, so each one is shown at its offset from
// the first tick seen.
type beatView struct {
	mu       sync.Mutex
	beats    int
	measures int
	bbar     *mpb.Bar
	mbar     *mpb.Bar

	now   func() time.Time
	after func(time.Duration, func())

	anchored bool
	origin   time.Time
	firstAt  float64
	seq      uint64
	shown    uint64
}

func newBeatView(p *mpb.Progress, s transport.Snapshot) *beatView {
	v := &beatView{
		beats:    s.BeatsPerMeasure,
		measures: s.MeasuresPerLoop,
		now:      time.Now,
		after:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
	v.bbar, v.mbar = cmdcommon.InitBars(p, int64(v.beats), int64(v.measures))
	v.show(s.CurrentTick, s.CurrentMeasure, s.Playing)
	return v
}

// show positions the bars at a zero-based beat and measure. A stopped
// transport that never played shows empty bars.
func (v *beatView) show(beat, measure int, playing bool) {
	if !playing && beat == 0 && measure == 0 {
		v.bbar.SetCurrent(0)
		v.mbar.SetCurrent(0)
		return
	}
	v.bbar.SetCurrent(int64(beat + 1))
	v.mbar.SetCurrent(int64(measure + 1))
}

func (v *beatView) onSnapshot(s transport.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s.BeatsPerMeasure != v.beats {
		v.beats = s.BeatsPerMeasure
		v.bbar.SetTotal(int64(v.beats), false)
	}
	if s.MeasuresPerLoop != v.measures {
		v.measures = s.MeasuresPerLoop
		v.mbar.SetTotal(int64(v.measures), false)
	}
	v.show(s.CurrentTick, s.CurrentMeasure, s.Playing)
}

func (v *beatView) onTick(t protocol.Tick) {
	v.mu.Lock()
	if !v.anchored {
		v.anchored = true
		v.origin = v.now()
		v.firstAt = t.ScheduledTime
	}
	v.seq++
	seq := v.seq
	due := v.origin.Add(time.Duration((t.ScheduledTime - v.firstAt) * float64(time.Millisecond)))
	delay := due.Sub(v.now())
	v.mu.Unlock()

	if delay <= 0 {
		v.showTick(seq, t.TickIndex)
		return
	}
	v.after(delay, func() { v.showTick(seq, t.TickIndex) })
}

// showTick moves the bars to a tick unless a later one is already shown.
func (v *beatView) showTick(seq uint64, index int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.beats < 1 || seq <= v.shown {
		return
	}
	v.shown = seq
	v.show(index%v.beats, index/v.beats, true)
}

func (v *beatView) close() {
	v.bbar.Abort(false)
	v.mbar.Abort(false)
}

func watch(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}

	// Notifications can arrive before the bars exist.
	var (
		viewMu sync.Mutex
		view   *beatView
		fatal  = make(chan string, 1)
	)
	current := func() *beatView {
		viewMu.Lock()
		defer viewMu.Unlock()
		return view
	}
	client, err := newClient(ctx, &metrocli.Options{
		OnTick: func(t protocol.Tick) {
			if v := current(); v != nil {
				v.onTick(t)
			}
		},
		OnSnapshot: func(s transport.Snapshot) {
			if v := current(); v != nil {
				v.onSnapshot(s)
			}
		},
		OnFatal: func(msg string) {
			select {
			case fatal <- msg:
			default:
			}
		},
	})
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "watch", "new_client", err)
		return nil
	}
	defer client.Close()

	cctx, cancel := callContext()
	snap, err := client.Snapshot(cctx)
	cancel()
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "watch", "transport_snapshot", err)
		return nil
	}

	p := mpb.New(mpb.WithWidth(48), mpb.WithRefreshRate(30*time.Millisecond))
	v := newBeatView(p, snap)
	viewMu.Lock()
	view = v
	viewMu.Unlock()

	sigCtx, stopSignals := setupShutdownHandler()
	defer stopSignals()

	var reason string
	select {
	case <-sigCtx.Done():
	case <-client.Done():
		reason = "daemon connection closed"
	case msg := <-fatal:
		reason = "transport failed: " + msg
	}
	v.close()
	p.Wait()
	if reason != "" {
		fmt.Printf("%s: watch: %s\n", ctx.App.HelpName, reason)
	}
	return nil
}

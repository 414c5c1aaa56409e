package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/metroloop/metroloop/internal/protocol"
	"github.com/metroloop/metroloop/internal/transport"
	"github.com/metroloop/metroloop/pkg/logger"
)

// Defaults for Config.
const (
	DefaultPollInterval = 25 * time.Millisecond
	DefaultLookahead    = 100 * time.Millisecond
)

var (
	// ErrInvalidConfig is returned by New when the lookahead window does not
	// exceed the poll interval.
	ErrInvalidConfig = errors.New("scheduler: lookahead must be greater than poll interval")
	// ErrTimerUnavailable is returned once the clock failed to arm a timer.
	// The scheduler stays stopped for the rest of its life.
	ErrTimerUnavailable = errors.New("scheduler: timer unavailable")
	// ErrClosed is returned by operations on a closed scheduler.
	ErrClosed = errors.New("scheduler: closed")
)

// Config configures a Scheduler. Zero durations select the defaults.
type Config struct {
	PollInterval time.Duration
	Lookahead    time.Duration
	// Clock defaults to a SystemClock.
	Clock  Clock
	Logger logger.Logger
}

func (c *Config) setDefaults() error {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Lookahead == 0 {
		c.Lookahead = DefaultLookahead
	}
	if c.PollInterval < 0 || c.Lookahead <= c.PollInterval {
		return fmt.Errorf("%w (poll %s, lookahead %s)", ErrInvalidConfig, c.PollInterval, c.Lookahead)
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}
	if c.Clock == nil {
		clk, err := NewSystemClock()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTimerUnavailable, err)
		}
		c.Clock = clk
	}
	return nil
}

type request struct {
	cmd   protocol.Command
	reply chan error
}

// Scheduler drives one transport. All methods are safe for concurrent use.
type Scheduler struct {
	poll      time.Duration
	lookahead time.Duration
	clock     Clock
	log       logger.Logger

	requests chan request
	events   *protocol.Queue[protocol.Event]
	snapshot atomic.Pointer[transport.Snapshot]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the run goroutine.
	state    *transport.State
	timer    Timer
	nextTick time.Duration
	lastDue  time.Duration
	failed   bool
}

// New creates a stopped scheduler with default transport settings and
// starts its goroutine. The goroutine exits when ctx is cancelled or Close
// is called.
func New(ctx context.Context, cfg Config) (*Scheduler, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		poll:      cfg.PollInterval,
		lookahead: cfg.Lookahead,
		clock:     cfg.Clock,
		log:       cfg.Logger,
		requests:  make(chan request),
		events:    protocol.NewQueue[protocol.Event](),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     transport.NewState(),
	}
	s.publish()
	go s.run()
	return s, nil
}

// Start begins playback from tick 0 with the given settings. Starting a
// playing transport restarts it.
func (s *Scheduler) Start(settings transport.Settings) error {
	return s.Dispatch(protocol.NewStart(settings))
}

// Stop halts playback. Ticks already emitted are still delivered. Stopping
// a stopped transport does nothing.
func (s *Scheduler) Stop() error {
	return s.Dispatch(protocol.Stop{})
}

// Update changes tempo, meter or loop. It applies to every tick not yet
// emitted and never produces a tick by itself.
func (s *Scheduler) Update(u transport.Update) error {
	return s.Dispatch(protocol.NewUpdate(u))
}

// Dispatch applies a decoded command and returns its outcome.
func (s *Scheduler) Dispatch(cmd protocol.Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return ErrClosed
	}
	return <-req.reply
}

// Snapshot returns the most recently published transport view.
func (s *Scheduler) Snapshot() transport.Snapshot {
	return *s.snapshot.Load()
}

// Events returns the ordered event stream. It is closed by Close.
func (s *Scheduler) Events() <-chan protocol.Event {
	return s.events.Out()
}

// Now returns the scheduler's clock reading, the reference for tick
// scheduled times.
func (s *Scheduler) Now() time.Duration {
	return s.clock.Now()
}

// Close stops the scheduler goroutine and closes the event stream. Events
// not yet received are dropped.
func (s *Scheduler) Close() {
	s.cancel()
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	defer s.events.Discard()
	defer s.disarm()

	for {
		var timerC <-chan time.Duration
		if s.timer != nil {
			timerC = s.timer.C()
		}
		select {
		case <-s.ctx.Done():
			return
		case req := <-s.requests:
			req.reply <- s.handle(req.cmd)
		case <-timerC:
			s.timer = nil
			s.wake()
		}
	}
}

func (s *Scheduler) handle(cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.Start:
		return s.start(c.Settings())
	case protocol.Stop:
		s.stop()
		return nil
	case protocol.Update:
		return s.update(c.TransportUpdate())
	default:
		return &protocol.ProtocolError{Reason: fmt.Sprintf("unsupported command %T", cmd)}
	}
}

func (s *Scheduler) start(settings transport.Settings) error {
	if s.failed {
		return ErrTimerUnavailable
	}
	if err := s.state.ApplyUpdate(settings.Update()); err != nil {
		return err
	}
	s.disarm()
	s.state.Reset()
	s.state.SetStatus(transport.Playing)
	s.nextTick = s.clock.Now()
	s.publish()
	s.log.Info("started at %.0f bpm, %s, %d measure(s)",
		settings.Tempo.BPM, settings.Meter, settings.Loop.MeasuresPerLoop)
	return s.arm(0)
}

func (s *Scheduler) stop() {
	if s.state.Status() == transport.Stopped {
		return
	}
	s.disarm()
	s.state.SetStatus(transport.Stopped)
	s.publish()
	s.log.Info("stopped")
}

func (s *Scheduler) update(u transport.Update) error {
	before := s.state.BeatInterval()
	if err := s.state.ApplyUpdate(u); err != nil {
		return err
	}
	if interval := s.state.BeatInterval(); interval != before && s.state.TickIndex() >= 0 {
		s.rebase(interval)
	}
	s.publish()
	return nil
}

// rebase moves the next tick to one interval after the last emitted one,
// never earlier than now, so a faster tempo cannot date ticks in the past.
func (s *Scheduler) rebase(interval time.Duration) {
	next := s.lastDue + interval
	if now := s.clock.Now(); next < now {
		next = now
	}
	s.nextTick = next
}

func (s *Scheduler) wake() {
	if s.state.Status() != transport.Playing {
		return
	}
	horizon := s.clock.Now() + s.lookahead
	for s.nextTick <= horizon {
		ev := s.state.Advance()
		ev.ScheduledTime = s.nextTick
		s.lastDue = s.nextTick
		s.events.Push(protocol.NewTick(ev))
		s.nextTick = s.lastDue + s.state.BeatInterval()
	}
	s.publish()
	_ = s.arm(s.poll)
}

func (s *Scheduler) arm(d time.Duration) error {
	t, err := s.clock.NewTimer(d)
	if err != nil {
		s.fail(err)
		return ErrTimerUnavailable
	}
	s.timer = t
	return nil
}

func (s *Scheduler) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fail(err error) {
	s.log.Error("could not arm timer: %v", err)
	s.failed = true
	s.timer = nil
	s.state.SetStatus(transport.Stopped)
	s.publish()
	s.events.Push(protocol.Fatal{Error: protocol.FatalTimerUnavailable})
}

func (s *Scheduler) publish() {
	snap := s.state.Snapshot()
	s.snapshot.Store(&snap)
}

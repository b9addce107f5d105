// Package engine wires the clock, transport, scheduling queue, pools and
// router into a contracts.Engine.
package engine

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leandrodaf/midiclock/internal/clock"
	"github.com/leandrodaf/midiclock/internal/pool"
	"github.com/leandrodaf/midiclock/internal/queue"
	"github.com/leandrodaf/midiclock/internal/router"
	"github.com/leandrodaf/midiclock/internal/transport"
	"github.com/leandrodaf/midiclock/sdk/contracts"
	"go.uber.org/multierr"
)

// DefaultDispatchInterval drives Run when the options leave it unset.
const DefaultDispatchInterval = time.Millisecond

// DefaultFailureBuffer sizes the Failures channel when the options leave it unset.
const DefaultFailureBuffer = 64

type noticeKind uint8

const (
	noticeTick noticeKind = iota
	noticeTransport
	noticeTempo
)

// notice is a listener callback recorded under the lock and made after it.
type notice struct {
	kind     noticeKind
	pulse    uint64
	cmd      contracts.CommandKind
	position uint32
	bpm      *big.Rat
}

// Engine implements contracts.Engine. Clock, transport and queue dispatch are
// serialized by mu; admission waits, deliveries and listener calls happen
// outside it.
type Engine struct {
	id        string
	name      string
	logger    contracts.Logger
	deliverer contracts.Deliverer
	listeners []contracts.TransportListener
	interval  time.Duration

	out    *pool.Pool
	in     *pool.Pool
	queue  *queue.Queue
	router *router.Router

	inbox chan contracts.ScheduledEvent
	done  chan struct{}

	failMu     sync.RWMutex
	failures   chan contracts.DeliveryFailure
	failClosed bool

	mu      sync.Mutex
	clock   *clock.Clock
	machine *transport.Machine
	ready   []contracts.ScheduledEvent // popped, not yet handed to DispatchDue's caller
	notices []notice
	closed  bool
}

var _ contracts.Engine = (*Engine)(nil)

// New builds an engine from fully populated options. Zero values fall back to
// the package defaults; invalid tempo or pool sizes fail with
// contracts.ErrQueueConfiguration.
func New(opts contracts.EngineOptions) (*Engine, error) {
	if opts.PPQ == 0 {
		opts.PPQ = clock.DefaultPPQ
	}
	if opts.BPM == nil {
		opts.BPM = big.NewRat(clock.DefaultBPM, 1)
	}
	if opts.DispatchInterval <= 0 {
		opts.DispatchInterval = DefaultDispatchInterval
	}
	if opts.FailureBuffer <= 0 {
		opts.FailureBuffer = DefaultFailureBuffer
	}
	if opts.Deliverer == nil {
		return nil, fmt.Errorf("%w: no deliverer", contracts.ErrQueueConfiguration)
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: no logger", contracts.ErrQueueConfiguration)
	}

	tempo, err := clock.NewTempo(opts.PPQ, opts.BPM)
	if err != nil {
		return nil, err
	}
	out, err := pool.New("output", opts.OutputPool)
	if err != nil {
		return nil, err
	}
	in, err := pool.New("input", opts.InputPool)
	if err != nil {
		return nil, err
	}

	machine := transport.New(tempo.PPQ)
	e := &Engine{
		id:        uuid.NewString(),
		name:      opts.Name,
		logger:    opts.Logger,
		deliverer: opts.Deliverer,
		listeners: append([]contracts.TransportListener(nil), opts.Listeners...),
		interval:  opts.DispatchInterval,
		out:       out,
		in:        in,
		queue:     queue.New(out),
		router:    router.New(opts.Deliverer, opts.DefaultSource, opts.Logger),
		inbox:     make(chan contracts.ScheduledEvent, in.Capacity()),
		failures:  make(chan contracts.DeliveryFailure, opts.FailureBuffer),
		done:      make(chan struct{}),
		clock:     clock.New(tempo, machine),
		machine:   machine,
	}
	for _, addr := range opts.Routes {
		e.router.RegisterRoute(addr)
	}
	for _, addr := range opts.Subscribers {
		e.router.Subscribe(addr)
	}

	e.logger.Info("engine created",
		e.logger.Field().String("engine", e.id),
		e.logger.Field().String("name", e.name),
		e.logger.Field().Int("ppq", tempo.PPQ),
		e.logger.Field().String("bpm", tempo.BPM.FloatString(3)),
		e.logger.Field().Int("output_capacity", out.Capacity()),
		e.logger.Field().Int("input_capacity", in.Capacity()),
		e.logger.Field().Duration("interval", e.interval),
	)
	return e, nil
}

func (e *Engine) ID() string {
	return e.id
}

// Enqueue schedules ev. Events addressed to contracts.Direct skip the queue
// and the pool: they are routed to the subscribers before Enqueue returns,
// with a zero EventID.
func (e *Engine) Enqueue(ctx context.Context, ev contracts.ScheduledEvent) (contracts.EventID, error) {
	if e.isClosed() {
		return 0, contracts.ErrClosed
	}
	if ev.Dest.Kind == contracts.DestDirect {
		if err := ev.Validate(); err != nil {
			return 0, err
		}
		ev.Dest = contracts.Subscribers
		return 0, e.route(ev)
	}

	id, err := e.queue.Enqueue(ctx, ev)
	if err != nil {
		e.logger.Warn("enqueue rejected",
			e.logger.Field().String("engine", e.id),
			e.logger.Field().String("due", ev.Due.String()),
			e.logger.Field().Error("error", err),
		)
		return 0, err
	}
	e.logger.Debug("event enqueued",
		e.logger.Field().Uint64("seq", uint64(id)),
		e.logger.Field().String("due", ev.Due.String()),
		e.logger.Field().String("priority", ev.Priority.String()),
		e.logger.Field().String("dest", ev.Dest.String()),
	)
	return id, nil
}

func (e *Engine) Cancel(id contracts.EventID) bool {
	return e.queue.Cancel(id)
}

// SetTempo schedules a tempo change. The rate in force does not change until
// the event comes due; it then governs every following pulse.
func (e *Engine) SetTempo(ctx context.Context, bpm *big.Rat, due contracts.DueTime) (contracts.EventID, error) {
	if bpm == nil || bpm.Sign() <= 0 {
		return 0, fmt.Errorf("%w: bpm must be positive", contracts.ErrQueueConfiguration)
	}
	return e.Enqueue(ctx, contracts.ScheduledEvent{
		Kind:     contracts.TempoChangeEvent,
		BPM:      new(big.Rat).Set(bpm),
		Due:      due,
		Priority: contracts.High,
	})
}

// SetPPQ changes the clock resolution. It fails while running.
func (e *Engine) SetPPQ(ppq int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return contracts.ErrClosed
	}
	if err := e.clock.SetPPQ(ppq); err != nil {
		return err
	}
	e.machine.SetPPQ(ppq)
	e.logger.Info("resolution changed", e.logger.Field().Int("ppq", ppq))
	return nil
}

// Start resets the song position and pulse counter and runs, even if the
// transport is already running.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return contracts.ErrClosed
	}
	e.clock.Reset(e.machine.Start())
	e.noteLocked(notice{kind: noticeTransport, cmd: contracts.CmdStart})
	notices := e.takeNoticesLocked()
	e.mu.Unlock()

	e.logger.Info("transport started", e.logger.Field().String("engine", e.id))
	e.notify(notices)
	return nil
}

// Stop freezes the song position. Real-time events keep dispatching. Stopping
// a stopped transport is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return contracts.ErrClosed
	}
	if !e.machine.Stop(e.clock.Pulses()) {
		e.mu.Unlock()
		return nil
	}
	pos := e.machine.Position(e.clock.Pulses())
	e.noteLocked(notice{kind: noticeTransport, cmd: contracts.CmdStop, position: pos})
	notices := e.takeNoticesLocked()
	e.mu.Unlock()

	e.logger.Info("transport stopped",
		e.logger.Field().String("engine", e.id),
		e.logger.Field().Int64("song_position", int64(pos)),
	)
	e.notify(notices)
	return nil
}

// Continue runs from the stored song position. Continuing a running
// transport is a no-op.
func (e *Engine) Continue() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return contracts.ErrClosed
	}
	pulses, ok := e.machine.Continue()
	if !ok {
		e.mu.Unlock()
		return nil
	}
	e.clock.Reset(pulses)
	pos := e.machine.Position(pulses)
	e.noteLocked(notice{kind: noticeTransport, cmd: contracts.CmdContinue, position: pos})
	notices := e.takeNoticesLocked()
	e.mu.Unlock()

	e.logger.Info("transport continued",
		e.logger.Field().String("engine", e.id),
		e.logger.Field().Int64("song_position", int64(pos)),
	)
	e.notify(notices)
	return nil
}

// Locate sets the song position Continue resumes from. It fails with
// contracts.ErrInvalidTransportTransition while running.
func (e *Engine) Locate(position uint16) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return contracts.ErrClosed
	}
	if err := e.machine.Locate(position); err != nil {
		e.mu.Unlock()
		return err
	}
	e.noteLocked(notice{kind: noticeTransport, cmd: contracts.CmdLocate, position: uint32(position)})
	notices := e.takeNoticesLocked()
	e.mu.Unlock()

	e.logger.Debug("song position set", e.logger.Field().Int64("song_position", int64(position)))
	e.notify(notices)
	return nil
}

// Apply executes a decoded transport command. CmdClockTick counts one
// 24-per-quarter clock from an external source as ppq/24 pulses; CmdTempo
// schedules its tempo for immediate effect.
func (e *Engine) Apply(ctx context.Context, cmd contracts.Command) error {
	switch cmd.Kind {
	case contracts.CmdStart:
		return e.Start()
	case contracts.CmdStop:
		return e.Stop()
	case contracts.CmdContinue:
		return e.Continue()
	case contracts.CmdLocate:
		return e.Locate(cmd.Position)
	case contracts.CmdClockTick:
		return e.externalClock()
	case contracts.CmdTempo:
		_, err := e.SetTempo(ctx, cmd.BPM, contracts.Immediately)
		return err
	}
	return fmt.Errorf("%w: unknown command %d", contracts.ErrInvalidTransportTransition, cmd.Kind)
}

func (e *Engine) externalClock() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return contracts.ErrClosed
	}
	n := e.clock.Tempo().PPQ / 24
	if n < 1 {
		n = 1
	}
	e.clock.Pulse(n, e.pulseLocked)
	notices := e.takeNoticesLocked()
	e.mu.Unlock()

	e.notify(notices)
	return nil
}

// Advance moves the clock forward by elapsed. Due events are collected at
// every pulse boundary crossed and at every real-time due instant crossed,
// so a tempo change lands exactly on its tick or microsecond however the
// caller slices time. Collected events wait for the next DispatchDue.
func (e *Engine) Advance(elapsed time.Duration) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if elapsed < 0 {
		elapsed = 0
	}
	for {
		next, ok := e.queue.NextMicros()
		if !ok {
			break
		}
		now := e.clock.NowNanos()
		at := next * 1000
		if at > now+uint64(elapsed) {
			break
		}
		var step time.Duration
		if at > now {
			step = time.Duration(at - now)
		}
		e.clock.Advance(step, e.pulseLocked)
		elapsed -= step
		e.collectLocked(e.clock.Pulses(), e.clock.NowMicros())
	}
	e.clock.Advance(elapsed, e.pulseLocked)
	notices := e.takeNoticesLocked()
	e.mu.Unlock()

	e.notify(notices)
}

// DispatchDue pops every due event and routes it. It never blocks on
// admission; routing failures go to Failures and the log. It returns the
// events dispatched, tempo changes included.
func (e *Engine) DispatchDue() []contracts.ScheduledEvent {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.collectLocked(e.clock.Pulses(), e.clock.NowMicros())
	due := e.ready
	e.ready = nil
	notices := e.takeNoticesLocked()
	e.mu.Unlock()

	e.notify(notices)
	for _, ev := range due {
		if ev.Kind == contracts.TempoChangeEvent {
			continue
		}
		_ = e.route(ev)
	}
	return due
}

// pulseLocked is the clock's per-pulse callback.
func (e *Engine) pulseLocked(pulse, atMicros uint64) {
	e.noteLocked(notice{kind: noticeTick, pulse: pulse})
	e.collectLocked(pulse, atMicros)
}

// collectLocked pops what is due at (pulse, atMicros) and applies tempo
// changes at once, before the clock computes the next pulse.
func (e *Engine) collectLocked(pulse, atMicros uint64) {
	for _, ev := range e.queue.DispatchDue(pulse, atMicros) {
		if ev.Kind == contracts.TempoChangeEvent {
			if err := e.clock.SetBPM(ev.BPM); err != nil {
				e.logger.Error("tempo change rejected",
					e.logger.Field().Uint64("seq", uint64(ev.ID)),
					e.logger.Field().Error("error", err),
				)
			} else {
				e.noteLocked(notice{kind: noticeTempo, bpm: new(big.Rat).Set(ev.BPM)})
				e.logger.Debug("tempo changed",
					e.logger.Field().Uint64("seq", uint64(ev.ID)),
					e.logger.Field().Uint64("pulse", pulse),
					e.logger.Field().String("bpm", ev.BPM.FloatString(3)),
				)
			}
		}
		e.ready = append(e.ready, ev)
	}
}

func (e *Engine) route(ev contracts.ScheduledEvent) error {
	err := e.router.Route(ev)
	if err == nil {
		e.logger.Debug("event dispatched",
			e.logger.Field().Uint64("seq", uint64(ev.ID)),
			e.logger.Field().String("dest", ev.Dest.String()),
		)
		return nil
	}

	e.logger.Error("delivery failed",
		e.logger.Field().String("engine", e.id),
		e.logger.Field().Uint64("seq", uint64(ev.ID)),
		e.logger.Field().String("dest", ev.Dest.String()),
		e.logger.Field().Error("error", err),
	)
	e.failMu.RLock()
	defer e.failMu.RUnlock()
	if e.failClosed {
		return err
	}
	select {
	case e.failures <- contracts.DeliveryFailure{Event: ev, Err: err}:
	default:
		e.logger.Warn("failure buffer full, report dropped", e.logger.Field().Uint64("seq", uint64(ev.ID)))
	}
	return err
}

// Run advances the clock by the wall time elapsed between ticks of a
// time.Ticker and dispatches after each tick, until ctx is done or the
// engine is closed. A panic in one tick is logged and the loop goes on.
func (e *Engine) Run(ctx context.Context) error {
	if e.isClosed() {
		return contracts.ErrClosed
	}
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("dispatch loop started",
		e.logger.Field().String("engine", e.id),
		e.logger.Field().Duration("interval", e.interval),
	)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("dispatch loop stopped", e.logger.Field().String("engine", e.id))
			return nil
		case <-e.done:
			return contracts.ErrClosed
		case now := <-ticker.C:
			e.tick(now.Sub(last))
			last = now
		}
	}
}

func (e *Engine) tick(elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic in dispatch tick",
				e.logger.Field().String("engine", e.id),
				e.logger.Field().String("panic", fmt.Sprint(r)),
			)
		}
	}()
	e.Advance(elapsed)
	e.DispatchDue()
}

func (e *Engine) RegisterRoute(addr contracts.Address) {
	e.router.RegisterRoute(addr)
}

func (e *Engine) UnregisterRoute(addr contracts.Address) {
	e.router.UnregisterRoute(addr)
}

func (e *Engine) Subscribe(addr contracts.Address) {
	e.router.Subscribe(addr)
}

func (e *Engine) Unsubscribe(addr contracts.Address) {
	e.router.Unsubscribe(addr)
}

// Receive admits an inbound event through the input pool and buffers it for
// Read.
func (e *Engine) Receive(ctx context.Context, ev contracts.ScheduledEvent) error {
	if e.isClosed() {
		return contracts.ErrClosed
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if err := e.in.Admit(ctx); err != nil {
		return err
	}
	if e.isClosed() {
		e.in.Release()
		return contracts.ErrClosed
	}
	ev.Payload = append([]byte(nil), ev.Payload...)
	// the input pool never admits more than the buffer holds
	e.inbox <- ev
	return nil
}

// Read returns the oldest buffered inbound event, waiting for one until ctx
// is done.
func (e *Engine) Read(ctx context.Context) (contracts.ScheduledEvent, error) {
	select {
	case ev := <-e.inbox:
		e.in.Release()
		return ev, nil
	case <-ctx.Done():
		return contracts.ScheduledEvent{}, ctx.Err()
	case <-e.done:
		return contracts.ScheduledEvent{}, contracts.ErrClosed
	}
}

// Failures reports events the router could not deliver. It is closed by
// Close.
func (e *Engine) Failures() <-chan contracts.DeliveryFailure {
	return e.failures
}

func (e *Engine) Stats() contracts.Stats {
	ticks, micros := e.queue.Len()

	e.mu.Lock()
	defer e.mu.Unlock()
	tempo := e.clock.Tempo()
	pulses := e.clock.Pulses()
	return contracts.Stats{
		State:               e.machine.State(),
		SongPosition:        e.machine.Position(pulses),
		Pulses:              pulses,
		NowMicros:           e.clock.NowMicros(),
		PPQ:                 tempo.PPQ,
		BPM:                 tempo.BPM,
		PulseDurationMicros: tempo.PulseDurationMicros(),
		PendingTicks:        ticks,
		PendingMicros:       micros,
		OutputOccupied:      e.out.Occupied(),
		InputOccupied:       e.in.Occupied(),
	}
}

// Close stops Run and Read, fails producers waiting for admission with
// contracts.ErrClosed, closes the Failures channel and closes the deliverer
// if it is an io.Closer. Pending events are discarded. Closing twice is a
// no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.done)
	e.mu.Unlock()

	e.queue.Close()
	e.in.Close()

	e.failMu.Lock()
	e.failClosed = true
	close(e.failures)
	e.failMu.Unlock()

	ticks, micros := e.queue.Len()
	e.logger.Info("engine closed",
		e.logger.Field().String("engine", e.id),
		e.logger.Field().Int("discarded", ticks+micros),
	)

	var err error
	if c, ok := e.deliverer.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	for _, l := range e.listeners {
		if c, ok := l.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) noteLocked(n notice) {
	if len(e.listeners) > 0 {
		e.notices = append(e.notices, n)
	}
}

func (e *Engine) takeNoticesLocked() []notice {
	n := e.notices
	e.notices = nil
	return n
}

func (e *Engine) notify(notices []notice) {
	for _, n := range notices {
		for _, l := range e.listeners {
			switch n.kind {
			case noticeTick:
				l.ClockTick(n.pulse)
			case noticeTransport:
				l.TransportChanged(n.cmd, n.position)
			case noticeTempo:
				l.TempoChanged(n.bpm)
			}
		}
	}
}

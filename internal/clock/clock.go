// Package clock converts a tempo into pulses. It keeps the time elapsed since
// the last pulse as an exact rational, so any sequence of Advance calls adding
// up to the same duration yields the same pulse count.
package clock

import (
	"fmt"
	"math/big"
	"time"

	"github.com/leandrodaf/midiclock/sdk/contracts"
)

// Gate reports the transport state; pulses only advance while it is Running.
type Gate interface {
	State() contracts.TransportState
}

// PulseFunc observes one pulse: its number and the real-time instant, in
// microseconds, at which it fell. It runs before the next pulse is computed,
// so a tempo change applied from it governs the following pulse.
type PulseFunc func(pulse uint64, atMicros uint64)

// Clock is a pulse counter plus a real-time cursor. It is not safe for
// concurrent use; the engine serializes access.
type Clock struct {
	tempo  Tempo
	dur    *big.Rat // micros per pulse
	gate   Gate
	pulses uint64
	nowNs  uint64
	carry  *big.Rat // micros since the last pulse boundary
}

// New returns a clock at pulse 0 with the real-time cursor at 0.
func New(t Tempo, gate Gate) *Clock {
	return &Clock{
		tempo: t,
		dur:   t.PulseDuration(),
		gate:  gate,
		carry: new(big.Rat),
	}
}

// Advance moves the real-time cursor forward by elapsed. While the gate is
// Running it also counts every whole pulse crossed, calling fn for each.
// It returns the number of pulses crossed.
func (c *Clock) Advance(elapsed time.Duration, fn PulseFunc) int {
	if elapsed <= 0 {
		return 0
	}
	c.nowNs += uint64(elapsed)
	if c.gate.State() != contracts.Running {
		return 0
	}

	c.carry.Add(c.carry, big.NewRat(int64(elapsed), 1000))
	crossed := 0
	for c.carry.Cmp(c.dur) >= 0 {
		c.carry.Sub(c.carry, c.dur)
		c.pulses++
		crossed++
		if fn != nil {
			at := new(big.Rat).Sub(big.NewRat(int64(c.nowNs), 1000), c.carry)
			fn(c.pulses, floorRat(at))
		}
	}
	return crossed
}

// Pulse counts n pulses driven by an external clock source, such as
// incoming Timing Clock messages. It is a no-op unless Running.
func (c *Clock) Pulse(n int, fn PulseFunc) {
	if c.gate.State() != contracts.Running {
		return
	}
	for i := 0; i < n; i++ {
		c.pulses++
		if fn != nil {
			fn(c.pulses, c.NowMicros())
		}
	}
}

// Reset sets the pulse counter and discards any partial pulse.
func (c *Clock) Reset(pulses uint64) {
	c.pulses = pulses
	c.carry.SetInt64(0)
}

// SetBPM changes the rate. The partial pulse already elapsed is kept and
// measured against the new duration.
func (c *Clock) SetBPM(bpm *big.Rat) error {
	t, err := NewTempo(c.tempo.PPQ, bpm)
	if err != nil {
		return err
	}
	c.tempo = t
	c.dur = t.PulseDuration()
	return nil
}

// SetPPQ changes the resolution. It fails while Running.
func (c *Clock) SetPPQ(ppq int) error {
	if c.gate.State() == contracts.Running {
		return fmt.Errorf("%w: cannot change ppq while running", contracts.ErrQueueConfiguration)
	}
	t, err := NewTempo(ppq, c.tempo.BPM)
	if err != nil {
		return err
	}
	c.tempo = t
	c.dur = t.PulseDuration()
	c.carry.SetInt64(0)
	return nil
}

func (c *Clock) Tempo() Tempo {
	return Tempo{PPQ: c.tempo.PPQ, BPM: new(big.Rat).Set(c.tempo.BPM)}
}

func (c *Clock) Pulses() uint64 {
	return c.pulses
}

// NowNanos is the real-time cursor in nanoseconds.
func (c *Clock) NowNanos() uint64 {
	return c.nowNs
}

// NowMicros is the real-time cursor in microseconds.
func (c *Clock) NowMicros() uint64 {
	return c.nowNs / 1000
}

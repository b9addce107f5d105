// Package transport holds the Stopped/Running state machine and the song
// position. It does not own the pulse counter; callers pass the clock's count
// in and apply the counts it hands back.
package transport

import (
	"fmt"

	"github.com/leandrodaf/midiclock/sdk/contracts"
)

// Machine is the transport state machine. It is not safe for concurrent use.
type Machine struct {
	state    contracts.TransportState
	position uint32 // 16th notes, valid while stopped
	ppq      int
}

// New returns a stopped machine at song position 0.
func New(ppq int) *Machine {
	return &Machine{state: contracts.Stopped, ppq: ppq}
}

func (m *Machine) State() contracts.TransportState {
	return m.state
}

// SetPPQ updates the resolution used to convert pulses and song positions.
func (m *Machine) SetPPQ(ppq int) {
	m.ppq = ppq
}

// Position returns the song position. While running it is derived from the
// live pulse count; while stopped it is the stored value.
func (m *Machine) Position(pulses uint64) uint32 {
	if m.state == contracts.Running {
		return m.toPosition(pulses)
	}
	return m.position
}

// Start resets the song position and enters Running, whatever the prior
// state. The returned pulse count, always 0, is the new counter value.
func (m *Machine) Start() uint64 {
	m.state = contracts.Running
	m.position = 0
	return 0
}

// Stop freezes the song position at the one reached by pulses. Stopping an
// already stopped transport keeps the stored position and reports false.
func (m *Machine) Stop(pulses uint64) bool {
	if m.state == contracts.Stopped {
		return false
	}
	m.position = m.toPosition(pulses)
	m.state = contracts.Stopped
	return true
}

// Continue enters Running from the stored position and returns the pulse
// count that position corresponds to. It reports false if already running.
func (m *Machine) Continue() (uint64, bool) {
	if m.state == contracts.Running {
		return 0, false
	}
	m.state = contracts.Running
	return m.toPulses(m.position), true
}

// Locate overwrites the song position. It is only valid while stopped.
func (m *Machine) Locate(position uint16) error {
	if m.state == contracts.Running {
		return fmt.Errorf("%w: locate to %d while running", contracts.ErrInvalidTransportTransition, position)
	}
	if position > contracts.MaxSongPosition {
		return fmt.Errorf("%w: song position %d exceeds %d", contracts.ErrInvalidTransportTransition, position, contracts.MaxSongPosition)
	}
	m.position = uint32(position)
	return nil
}

// A 16th note is a quarter of ppq pulses.
func (m *Machine) toPosition(pulses uint64) uint32 {
	return uint32(pulses * 4 / uint64(m.ppq))
}

func (m *Machine) toPulses(position uint32) uint64 {
	return uint64(position) * uint64(m.ppq) / 4
}

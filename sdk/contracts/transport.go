package contracts

import "math/big"

// MaxSongPosition is the largest value a Locate may carry (14-bit pointer).
const MaxSongPosition = 1<<14 - 1

// TransportState is the running state of the transport.
type TransportState uint8

const (
	Stopped TransportState = iota
	Running
)

func (s TransportState) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// CommandKind enumerates the decoded transport commands the engine accepts.
type CommandKind uint8

const (
	CmdStart CommandKind = iota + 1
	CmdStop
	CmdContinue
	CmdLocate
	CmdClockTick
	CmdTempo
)

func (k CommandKind) String() string {
	switch k {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdContinue:
		return "continue"
	case CmdLocate:
		return "locate"
	case CmdClockTick:
		return "clock"
	case CmdTempo:
		return "tempo"
	}
	return "unknown"
}

// Command is a transport message already decoded from its wire form.
type Command struct {
	Kind     CommandKind
	Position uint16   // CmdLocate, in 16th notes
	BPM      *big.Rat // CmdTempo
}

// TransportListener receives clock and transport notifications. Calls are made
// outside the engine lock, in the goroutine that drove the change.
type TransportListener interface {
	ClockTick(pulse uint64)
	TransportChanged(kind CommandKind, songPosition uint32)
	TempoChanged(bpm *big.Rat)
}

// Deliverer performs the actual send of a resolved event. The engine treats it
// as fire-and-forget and never waits for an acknowledgement.
type Deliverer interface {
	Deliver(src, dst Address, payload []byte) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(src, dst Address, payload []byte) error

func (f DelivererFunc) Deliver(src, dst Address, payload []byte) error {
	return f(src, dst, payload)
}

package gomidiport

import (
	"fmt"
	"math/big"

	"github.com/leandrodaf/midiclock/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

// ClockForwarder is a transport listener that drives a downstream device:
// one Timing Clock per ppq/24 engine pulses, plus Start, Stop, Continue,
// Song Position Pointer and tempo messages as the transport changes.
type ClockForwarder struct {
	out      Sender
	perClock uint64
	logger   contracts.Logger
}

var _ contracts.TransportListener = (*ClockForwarder)(nil)

// NewClockForwarder returns a forwarder for an engine running at ppq, which
// must be a positive multiple of 24. The ratio is fixed at construction.
func NewClockForwarder(out Sender, ppq int, logger contracts.Logger) (*ClockForwarder, error) {
	if ppq <= 0 || ppq%24 != 0 {
		return nil, fmt.Errorf("%w: clock output needs ppq divisible by 24, got %d", contracts.ErrQueueConfiguration, ppq)
	}
	return &ClockForwarder{out: out, perClock: uint64(ppq / 24), logger: logger}, nil
}

func (f *ClockForwarder) ClockTick(pulse uint64) {
	if pulse%f.perClock == 0 {
		f.send(midi.TimingClock())
	}
}

func (f *ClockForwarder) TransportChanged(kind contracts.CommandKind, songPosition uint32) {
	switch kind {
	case contracts.CmdStart:
		f.send(midi.Start())
	case contracts.CmdStop:
		f.send(midi.Stop())
	case contracts.CmdContinue:
		f.send(midi.Continue())
	case contracts.CmdLocate:
		f.send(midi.SPP(uint16(songPosition)))
	}
}

func (f *ClockForwarder) TempoChanged(bpm *big.Rat) {
	msg, err := Tempo(bpm)
	if err != nil {
		f.logger.Debug("tempo not forwarded", f.logger.Field().Error("error", err))
		return
	}
	f.send(msg)
}

func (f *ClockForwarder) send(msg midi.Message) {
	if err := f.out.Send(msg); err != nil {
		f.logger.Warn("clock output failed",
			f.logger.Field().String("message", msg.String()),
			f.logger.Field().Error("error", err),
		)
	}
}

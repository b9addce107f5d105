// Package gomidiport connects an engine to ports opened through
// gitlab.com/gomidi/midi/v2: it delivers payloads to output ports, decodes
// inbound transport messages into commands, and emits a 24-per-quarter
// clock for downstream devices.
package gomidiport

import (
	"math/big"

	"github.com/leandrodaf/midiclock/internal/clock"
	"github.com/leandrodaf/midiclock/sdk/contracts"
	"gitlab.com/gomidi/midi/v2"
)

// TempoStatus is the undefined system common status byte used to carry a
// tempo data byte; see clock.BPMFromData.
const TempoStatus = 0xF4

// Decode maps a transport or tempo message to a command. It reports false
// for anything else, including a tempo message with an invalid data byte.
func Decode(msg midi.Message) (contracts.Command, bool) {
	if len(msg) == 0 {
		return contracts.Command{}, false
	}
	if len(msg) == 2 && msg[0] == TempoStatus {
		bpm, err := clock.BPMFromData(msg[1])
		if err != nil {
			return contracts.Command{}, false
		}
		return contracts.Command{Kind: contracts.CmdTempo, BPM: bpm}, true
	}

	switch msg.Type() {
	case midi.StartMsg:
		return contracts.Command{Kind: contracts.CmdStart}, true
	case midi.StopMsg:
		return contracts.Command{Kind: contracts.CmdStop}, true
	case midi.ContinueMsg:
		return contracts.Command{Kind: contracts.CmdContinue}, true
	case midi.TimingClockMsg:
		return contracts.Command{Kind: contracts.CmdClockTick}, true
	case midi.SPPMsg:
		var pos uint16
		if msg.GetSPP(&pos) {
			return contracts.Command{Kind: contracts.CmdLocate, Position: pos}, true
		}
	}
	return contracts.Command{}, false
}

// Tempo encodes bpm as a tempo message.
func Tempo(bpm *big.Rat) (midi.Message, error) {
	data, err := clock.DataFromBPM(bpm)
	if err != nil {
		return nil, err
	}
	return midi.Message{TempoStatus, data}, nil
}

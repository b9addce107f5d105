//go:build darwin
// +build darwin

package mididarwin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/midiclock/sdk/contracts"
	"github.com/youpy/go-coremidi"
)

// Error definitions for CoreMIDI output issues.
var (
	ErrNoMIDIDestinations  = errors.New("no MIDI destinations found")
	ErrInvalidDestination  = errors.New("invalid MIDI destination")
	ErrCreateOutputPort    = errors.New("error creating output port")
	ErrMIDIDeliveryFailure = errors.New("error sending MIDI packet")
)

// Deliverer sends resolved events to CoreMIDI destinations. A destination
// address selects the endpoint by its index in AllDestinations through its
// Port field; CoreMIDI has no client numbering, so Client is ignored.
type Deliverer struct {
	logger contracts.Logger
	client coremidi.Client     // CoreMIDI client owning the port.
	port   coremidi.OutputPort // Output port every packet is sent through.
	mu     sync.Mutex          // Serializes sends on the port.
}

// NewDeliverer creates a CoreMIDI client named after the engine and an
// output port on it.
func NewDeliverer(options *contracts.EngineOptions) (contracts.Deliverer, error) {
	client, err := coremidi.NewClient(options.Name)
	if err != nil {
		return nil, err
	}
	port, err := coremidi.NewOutputPort(client, options.Name+" out")
	if err != nil {
		options.Logger.Error(ErrCreateOutputPort.Error())
		return nil, fmt.Errorf("%w: %v", ErrCreateOutputPort, err)
	}
	options.Logger.Info("CoreMIDI output port created", options.Logger.Field().String("client", options.Name))

	return &Deliverer{
		logger: options.Logger,
		client: client,
		port:   port,
	}, nil
}

// Destinations lists the names of the available endpoints in address order.
func (d *Deliverer) Destinations() ([]string, error) {
	dests, err := coremidi.AllDestinations()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI destinations: %w", err)
	}
	if len(dests) == 0 {
		d.logger.Warn(ErrNoMIDIDestinations.Error())
		return nil, ErrNoMIDIDestinations
	}
	names := make([]string, len(dests))
	for i, dest := range dests {
		names[i] = dest.Name()
	}
	return names, nil
}

// Deliver sends payload as a single packet stamped for immediate delivery.
func (d *Deliverer) Deliver(_, dst contracts.Address, payload []byte) error {
	dests, err := coremidi.AllDestinations()
	if err != nil {
		return fmt.Errorf("error retrieving MIDI destinations: %w", err)
	}
	if int(dst.Port) >= len(dests) {
		return fmt.Errorf("%w: %s", ErrInvalidDestination, dst)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	packet := coremidi.NewPacket(payload, 0)
	if err := packet.Send(&d.port, &dests[dst.Port]); err != nil {
		return fmt.Errorf("%w: %v", ErrMIDIDeliveryFailure, err)
	}
	return nil
}

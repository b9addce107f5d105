package gomidiport

import (
	"fmt"
	"sync"

	"github.com/leandrodaf/midiclock/sdk/contracts"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/multierr"
)

// Sender is the write side of an output port; drivers.Out satisfies it.
type Sender interface {
	Send(data []byte) error
}

// Deliverer maps destination addresses to attached output ports.
type Deliverer struct {
	logger contracts.Logger

	mu    sync.RWMutex
	ports map[contracts.Address]Sender
}

func NewDeliverer(logger contracts.Logger) *Deliverer {
	return &Deliverer{
		logger: logger,
		ports:  make(map[contracts.Address]Sender),
	}
}

// Attach makes s the port behind addr, replacing any earlier one.
func (d *Deliverer) Attach(addr contracts.Address, s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ports[addr] = s
}

func (d *Deliverer) Detach(addr contracts.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.ports, addr)
}

// AttachPort opens out if needed and attaches it at client 0, with the
// driver's port number as the port.
func (d *Deliverer) AttachPort(out drivers.Out) (contracts.Address, error) {
	if !out.IsOpen() {
		if err := out.Open(); err != nil {
			return contracts.Address{}, fmt.Errorf("open %s: %w", out.String(), err)
		}
	}
	addr := contracts.Address{Port: uint8(out.Number())}
	d.Attach(addr, out)
	d.logger.Info("output port attached",
		d.logger.Field().String("port", out.String()),
		d.logger.Field().String("address", addr.String()),
	)
	return addr, nil
}

func (d *Deliverer) Deliver(_, dst contracts.Address, payload []byte) error {
	d.mu.RLock()
	s, ok := d.ports[dst]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no port attached at %s", contracts.ErrUnknownDestination, dst)
	}
	return s.Send(payload)
}

// Close closes every attached port that can be closed.
func (d *Deliverer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for addr, s := range d.ports {
		if c, ok := s.(interface{ Close() error }); ok {
			err = multierr.Append(err, c.Close())
		}
		delete(d.ports, addr)
	}
	return err
}

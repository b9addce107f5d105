//go:build !windows
// +build !windows

package midiwindows

import (
	"fmt"

	"github.com/leandrodaf/midiclock/sdk/contracts"
)

type DummyDeliverer struct {
	logger contracts.Logger
}

func NewDeliverer(options *contracts.EngineOptions) (contracts.Deliverer, error) {
	options.Logger.Info("Using dummy MIDI deliverer for non-Windows system")
	return &DummyDeliverer{
		logger: options.Logger,
	}, nil
}

func (d *DummyDeliverer) Destinations() ([]string, error) {
	d.logger.Warn("Destinations called on dummy MIDI deliverer")
	return nil, fmt.Errorf("MIDI functionality is not available on this platform")
}

func (d *DummyDeliverer) Deliver(_, dst contracts.Address, _ []byte) error {
	d.logger.Warn("Deliver called on dummy MIDI deliverer", d.logger.Field().String("dest", dst.String()))
	return fmt.Errorf("MIDI functionality is not available on this platform")
}

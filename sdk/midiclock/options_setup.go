package midiclock

import (
	"math/big"

	"github.com/leandrodaf/midiclock/internal/clock"
	"github.com/leandrodaf/midiclock/internal/engine"
	"github.com/leandrodaf/midiclock/internal/logger"
	"github.com/leandrodaf/midiclock/sdk/contracts"
)

// DefaultName is the client name used when none is configured.
const DefaultName = "midiclock"

// applyDefaultOptions sets default values for EngineOptions if not explicitly provided.
//
// opts ...contracts.Option: A variadic list of option functions that can modify EngineOptions.
//
// Returns:
//   - contracts.EngineOptions: A structure containing the finalized engine options with defaults applied.
//   - error: An error if there was an issue applying the options.
func applyDefaultOptions(opts ...contracts.Option) (contracts.EngineOptions, error) {
	options := &contracts.EngineOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Set defaults if options are not provided
	if options.Name == "" {
		options.Name = DefaultName
	}
	if options.Logger == nil {
		options.Logger = logger.NewZapLogger() // Default to a standard logger
	}
	if options.LogLevel == 0 {
		options.LogLevel = contracts.InfoLevel // Default log level to InfoLevel
	}
	if options.PPQ == 0 {
		options.PPQ = clock.DefaultPPQ
	}
	if options.BPM == nil {
		options.BPM = big.NewRat(clock.DefaultBPM, 1)
	}
	if options.DispatchInterval <= 0 {
		options.DispatchInterval = engine.DefaultDispatchInterval
	}
	if options.FailureBuffer <= 0 {
		options.FailureBuffer = engine.DefaultFailureBuffer
	}

	if options.Deliverer == nil {
		d, err := NewPlatformDeliverer(options) // Default to the OS MIDI output
		if err != nil {
			return contracts.EngineOptions{}, err
		}
		options.Deliverer = d
	}

	options.Logger.SetLevel(options.LogLevel) // Set the logger to the specified log level
	if options.LogFilePath != "" {
		options.Logger.SetDestination(contracts.FileLog, options.LogFilePath)
	}
	return *options, nil
}

package midiclock

import (
	"github.com/leandrodaf/midiclock/internal/engine"
	"github.com/leandrodaf/midiclock/sdk/contracts"
)

// NewEngine creates a new clock engine with the specified options.
// It applies default options and initializes the engine.
//
// opts ...contracts.Option: A variadic list of option functions to customize the engine configuration.
//
// Returns:
//   - contracts.Engine: An instance of the engine, stopped at song position 0.
//   - error: An error, if any occurred during the creation of the engine.
func NewEngine(opts ...contracts.Option) (contracts.Engine, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	e, err := engine.New(options)
	if err != nil {
		return nil, err
	}

	return e, nil
}

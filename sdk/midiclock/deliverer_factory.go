package midiclock

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/leandrodaf/midiclock/internal/midi/mididarwin"
	"github.com/leandrodaf/midiclock/internal/midi/midiwindows"
	"github.com/leandrodaf/midiclock/sdk/contracts"
)

// ErrUnsupportedOS is returned when the operating system has no MIDI output deliverer.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// delivererInitializers maps OS names to corresponding MIDI output initializers.
var delivererInitializers = map[string]func(*contracts.EngineOptions) (contracts.Deliverer, error){
	"darwin":  mididarwin.NewDeliverer,  // macOS (Darwin) CoreMIDI output.
	"windows": midiwindows.NewDeliverer, // Windows winmm output.
}

// NewPlatformDeliverer initializes a MIDI output deliverer for the current operating system.
// It supports macOS (Darwin) and Windows, returning ErrUnsupportedOS if the OS is unsupported.
//
// opts *contracts.EngineOptions: The name and logger are used by the deliverer.
//
// Returns:
//   - contracts.Deliverer: The platform deliverer.
//   - error: An error if the operating system is unsupported or if initialization fails.
func NewPlatformDeliverer(opts *contracts.EngineOptions) (contracts.Deliverer, error) {
	return newDeliverer(runtime.GOOS, opts)
}

func newDeliverer(goos string, opts *contracts.EngineOptions) (contracts.Deliverer, error) {
	if initializer, exists := delivererInitializers[goos]; exists {
		return initializer(opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
}

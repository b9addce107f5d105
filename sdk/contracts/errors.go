package contracts

import "errors"

// Error kinds returned by the engine. Callers match them with errors.Is; the
// engine wraps them with context about the call that failed.
var (
	// ErrQueueConfiguration is returned when the clock resolution is changed
	// while the transport is running, or when a configuration value is invalid.
	ErrQueueConfiguration = errors.New("queue configuration error")
	// ErrInvalidTransportTransition is returned for a transport command that is
	// not valid in the current state, such as Locate while running.
	ErrInvalidTransportTransition = errors.New("invalid transport transition")
	// ErrPoolExhausted is returned when admission is denied or times out.
	ErrPoolExhausted = errors.New("pool exhausted")
	// ErrUnknownDestination is returned when a direct address has no
	// registered route or subscriber.
	ErrUnknownDestination = errors.New("unknown destination")
	// ErrInvalidEvent is returned by Enqueue for malformed events.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)

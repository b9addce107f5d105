package contracts

import (
	"math/big"
	"time"
)

// PoolConfig sizes one admission pool.
type PoolConfig struct {
	Capacity int  // maximum outstanding events
	Room     int  // waiters wake when occupancy drops below this
	Blocking bool // block admitters instead of failing with ErrPoolExhausted
}

// EngineOptions defines the configuration of an engine. All values are
// supplied at construction; only ppq may be changed later, and only while stopped.
type EngineOptions struct {
	Name             string              // Client name, used in logs and by platform deliverers.
	Logger           Logger              // Logger for lifecycle and dispatch messages.
	LogLevel         LogLevel            // Level of logging to use.
	LogFilePath      string              // File path for logging if file logging is enabled.
	PPQ              int                 // Pulses per quarter note.
	BPM              *big.Rat            // Initial tempo.
	OutputPool       PoolConfig          // Admission in front of the scheduling queue.
	InputPool        PoolConfig          // Admission in front of the receive buffer.
	DispatchInterval time.Duration       // Period of the built-in timer driving Run.
	Deliverer        Deliverer           // Performs the sends the router resolves.
	DefaultSource    Address             // Source used when an event carries none.
	Routes           []Address           // Destinations reachable by direct addressing.
	Subscribers      []Address           // Destinations of broadcast events.
	Listeners        []TransportListener // Clock and transport observers.
	FailureBuffer    int                 // Capacity of the Failures channel.
}

// Option is a function that modifies EngineOptions.
type Option func(*EngineOptions)

// WithName sets the client name.
func WithName(name string) Option {
	return func(opts *EngineOptions) {
		opts.Name = name
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(l Logger) Option {
	return func(opts *EngineOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the engine.
func WithLogLevel(level LogLevel) Option {
	return func(opts *EngineOptions) {
		opts.LogLevel = level
	}
}

// WithLogFile sends logs to the given file instead of the console.
func WithLogFile(path string) Option {
	return func(opts *EngineOptions) {
		opts.LogFilePath = path
	}
}

// WithPPQ sets the clock resolution in pulses per quarter note.
func WithPPQ(ppq int) Option {
	return func(opts *EngineOptions) {
		opts.PPQ = ppq
	}
}

// WithBPM sets the initial tempo as an exact rational.
func WithBPM(bpm *big.Rat) Option {
	return func(opts *EngineOptions) {
		opts.BPM = bpm
	}
}

// WithTempo sets the initial tempo in whole beats per minute.
func WithTempo(bpm int64) Option {
	return WithBPM(big.NewRat(bpm, 1))
}

// WithOutputPool sizes the pool in front of the scheduling queue.
func WithOutputPool(cfg PoolConfig) Option {
	return func(opts *EngineOptions) {
		opts.OutputPool = cfg
	}
}

// WithInputPool sizes the pool in front of the receive buffer.
func WithInputPool(cfg PoolConfig) Option {
	return func(opts *EngineOptions) {
		opts.InputPool = cfg
	}
}

// WithDispatchInterval sets the period of the built-in timer. It bounds the
// worst-case delivery latency of Run.
func WithDispatchInterval(d time.Duration) Option {
	return func(opts *EngineOptions) {
		opts.DispatchInterval = d
	}
}

// WithDeliverer sets the delivery collaborator.
func WithDeliverer(d Deliverer) Option {
	return func(opts *EngineOptions) {
		opts.Deliverer = d
	}
}

// WithDefaultSource sets the source used for events that carry none.
func WithDefaultSource(addr Address) Option {
	return func(opts *EngineOptions) {
		opts.DefaultSource = addr
	}
}

// WithRoutes registers destinations reachable by direct addressing.
func WithRoutes(addrs ...Address) Option {
	return func(opts *EngineOptions) {
		opts.Routes = append(opts.Routes, addrs...)
	}
}

// WithSubscribers registers broadcast destinations.
func WithSubscribers(addrs ...Address) Option {
	return func(opts *EngineOptions) {
		opts.Subscribers = append(opts.Subscribers, addrs...)
	}
}

// WithListener adds a clock and transport observer.
func WithListener(l TransportListener) Option {
	return func(opts *EngineOptions) {
		opts.Listeners = append(opts.Listeners, l)
	}
}

// WithFailureBuffer sets the capacity of the Failures channel.
func WithFailureBuffer(n int) Option {
	return func(opts *EngineOptions) {
		opts.FailureBuffer = n
	}
}

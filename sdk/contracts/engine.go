package contracts

import (
	"context"
	"math/big"
	"time"
)

// Stats is a point-in-time snapshot of an engine.
type Stats struct {
	State               TransportState
	SongPosition        uint32
	Pulses              uint64
	NowMicros           uint64
	PPQ                 int
	BPM                 *big.Rat
	PulseDurationMicros uint64
	PendingTicks        int
	PendingMicros       int
	OutputOccupied      int
	InputOccupied       int
}

// Engine is a transport clock with a scheduling queue and router.
type Engine interface {
	ID() string // Unique identity of this engine instance.

	Enqueue(ctx context.Context, ev ScheduledEvent) (EventID, error)          // Admits and schedules an event.
	Cancel(id EventID) bool                                                   // Withdraws a pending event.
	SetTempo(ctx context.Context, bpm *big.Rat, due DueTime) (EventID, error) // Schedules a tempo change.
	SetPPQ(ppq int) error                                                     // Changes resolution while stopped.

	Start() error                                 // Resets song position and starts.
	Stop() error                                  // Freezes song position.
	Continue() error                              // Resumes from the stored song position.
	Locate(position uint16) error                 // Sets song position while stopped.
	Apply(ctx context.Context, cmd Command) error // Executes a decoded transport command.

	Advance(elapsed time.Duration) // Moves the clock forward; timer entry point.
	DispatchDue() []ScheduledEvent // Routes every due event; timer entry point.
	Run(ctx context.Context) error // Drives Advance and DispatchDue from a ticker.

	RegisterRoute(addr Address)
	UnregisterRoute(addr Address)
	Subscribe(addr Address)
	Unsubscribe(addr Address)

	Receive(ctx context.Context, ev ScheduledEvent) error // Admits an inbound event.
	Read(ctx context.Context) (ScheduledEvent, error)     // Pops an inbound event.

	Failures() <-chan DeliveryFailure // Events the router could not deliver; closed by Close.
	Stats() Stats
	Close() error
}

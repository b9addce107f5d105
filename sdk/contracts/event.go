package contracts

import (
	"fmt"
	"math/big"
)

// MaxPayloadSize is the largest opaque payload a ScheduledEvent may carry.
const MaxPayloadSize = 12

// TimeDomain is the clock a due time is measured against.
type TimeDomain uint8

const (
	// TickDomain due times count pulses since Start.
	TickDomain TimeDomain = iota
	// MicrosDomain due times count microseconds of the real-time cursor.
	MicrosDomain
)

func (d TimeDomain) String() string {
	if d == MicrosDomain {
		return "micros"
	}
	return "ticks"
}

// DueTime is the instant at which an event becomes eligible for dispatch.
// The domain is fixed when the event is enqueued and never reinterpreted.
type DueTime struct {
	Domain TimeDomain
	Value  uint64
}

// AtTick returns a due time in the tick domain.
func AtTick(tick uint64) DueTime {
	return DueTime{Domain: TickDomain, Value: tick}
}

// AtMicros returns a due time in the real-time domain.
func AtMicros(us uint64) DueTime {
	return DueTime{Domain: MicrosDomain, Value: us}
}

// Immediately is always in the past, so the event goes out on the next dispatch.
var Immediately = AtMicros(0)

func (t DueTime) String() string {
	return fmt.Sprintf("%s(%d)", t.Domain, t.Value)
}

// Priority orders events sharing a due time.
type Priority uint8

const (
	Normal Priority = iota
	High
)

func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "normal"
}

// EventKind separates opaque payload events from tempo changes consumed by the clock.
type EventKind uint8

const (
	PayloadEvent EventKind = iota
	TempoChangeEvent
)

// EventID identifies an enqueued event. It is the insertion sequence number,
// so IDs from one engine are strictly increasing.
type EventID uint64

// ScheduledEvent is a timed event owned by the queue until dispatch.
type ScheduledEvent struct {
	ID       EventID // assigned by Enqueue
	Kind     EventKind
	Payload  []byte
	BPM      *big.Rat // TempoChangeEvent only
	Due      DueTime
	Priority Priority
	Source   *Address // nil resolves to the engine's default source
	Dest     Destination
}

// Validate reports whether the event can be enqueued.
func (e ScheduledEvent) Validate() error {
	if len(e.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload is %d bytes, max %d", ErrInvalidEvent, len(e.Payload), MaxPayloadSize)
	}
	if e.Kind == TempoChangeEvent {
		if e.BPM == nil || e.BPM.Sign() <= 0 {
			return fmt.Errorf("%w: tempo change needs a positive bpm", ErrInvalidEvent)
		}
		if e.Dest.Kind == DestDirect {
			return fmt.Errorf("%w: tempo change cannot bypass the queue", ErrInvalidEvent)
		}
	}
	return nil
}

// DeliveryFailure reports an event the router could not deliver.
type DeliveryFailure struct {
	Event ScheduledEvent
	Err   error
}

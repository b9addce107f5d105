package contracts

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies a port on a client, written "client:port".
type Address struct {
	Client uint8
	Port   uint8
}

func (a Address) String() string {
	return fmt.Sprintf("%d:%d", a.Client, a.Port)
}

// ParseAddress parses the "client:port" form produced by Address.String.
func ParseAddress(s string) (Address, error) {
	client, port, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Address{}, fmt.Errorf("address %q: missing ':'", s)
	}
	c, err := strconv.ParseUint(client, 10, 8)
	if err != nil {
		return Address{}, fmt.Errorf("address %q: client: %w", s, err)
	}
	p, err := strconv.ParseUint(port, 10, 8)
	if err != nil {
		return Address{}, fmt.Errorf("address %q: port: %w", s, err)
	}
	return Address{Client: uint8(c), Port: uint8(p)}, nil
}

// DestinationKind selects how the router resolves an event's destination.
type DestinationKind uint8

const (
	// DestUnset resolves to DestSubscribers.
	DestUnset DestinationKind = iota
	// DestPort delivers to exactly one address, ignoring subscriptions.
	DestPort
	// DestSubscribers delivers to every subscribed address.
	DestSubscribers
	// DestDirect skips the scheduling queue and delivers to subscribers at once.
	DestDirect
)

// Destination is an event's addressing: a concrete port or one of the sentinels.
type Destination struct {
	Kind DestinationKind
	Addr Address // valid when Kind == DestPort
}

// Sentinel destinations.
var (
	Subscribers = Destination{Kind: DestSubscribers}
	Direct      = Destination{Kind: DestDirect}
)

// To returns a destination addressing exactly addr.
func To(addr Address) Destination {
	return Destination{Kind: DestPort, Addr: addr}
}

func (d Destination) String() string {
	switch d.Kind {
	case DestPort:
		return d.Addr.String()
	case DestSubscribers:
		return "subscribers"
	case DestDirect:
		return "direct"
	default:
		return "unset"
	}
}

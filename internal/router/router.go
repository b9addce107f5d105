// Package router resolves event addressing and hands events to the delivery
// collaborator, once per resolved destination.
package router

import (
	"fmt"
	"slices"
	"sync"

	"github.com/leandrodaf/midiclock/sdk/contracts"
	"go.uber.org/multierr"
)

// Router is safe for concurrent use.
type Router struct {
	deliverer     contracts.Deliverer
	defaultSource contracts.Address
	logger        contracts.Logger

	mu          sync.RWMutex
	routes      map[contracts.Address]struct{}
	subscribers []contracts.Address // subscription order
}

// New returns a router that sends through d and stamps defaultSource on
// events that carry no source.
func New(d contracts.Deliverer, defaultSource contracts.Address, logger contracts.Logger) *Router {
	return &Router{
		deliverer:     d,
		defaultSource: defaultSource,
		logger:        logger,
		routes:        make(map[contracts.Address]struct{}),
	}
}

// RegisterRoute makes addr reachable by direct addressing.
func (r *Router) RegisterRoute(addr contracts.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[addr] = struct{}{}
}

func (r *Router) UnregisterRoute(addr contracts.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, addr)
}

// Subscribe adds addr to the broadcast set. Subscribers are also valid
// direct destinations.
func (r *Router) Subscribe(addr contracts.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.subscribers, addr) {
		r.subscribers = append(r.subscribers, addr)
	}
}

func (r *Router) Unsubscribe(addr contracts.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = slices.DeleteFunc(r.subscribers, func(a contracts.Address) bool { return a == addr })
}

// Subscribers returns a copy of the broadcast set in subscription order.
func (r *Router) Subscribers() []contracts.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.subscribers)
}

// Resolve returns the source and destinations for ev. A concrete destination
// must be a registered route or subscriber; subscription state is otherwise
// ignored for it.
func (r *Router) Resolve(ev contracts.ScheduledEvent) (contracts.Address, []contracts.Address, error) {
	src := r.defaultSource
	if ev.Source != nil {
		src = *ev.Source
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	switch ev.Dest.Kind {
	case contracts.DestPort:
		addr := ev.Dest.Addr
		if _, ok := r.routes[addr]; !ok && !slices.Contains(r.subscribers, addr) {
			return src, nil, fmt.Errorf("%w: %s", contracts.ErrUnknownDestination, addr)
		}
		return src, []contracts.Address{addr}, nil
	default:
		return src, slices.Clone(r.subscribers), nil
	}
}

// Route resolves ev and delivers it. Delivery errors from every destination
// are combined; one failing destination does not stop the others.
func (r *Router) Route(ev contracts.ScheduledEvent) error {
	src, dsts, err := r.Resolve(ev)
	if err != nil {
		return err
	}
	if len(dsts) == 0 {
		r.logger.Debug("no subscribers for event", r.logger.Field().Uint64("seq", uint64(ev.ID)))
		return nil
	}

	for _, dst := range dsts {
		if derr := r.deliverer.Deliver(src, dst, ev.Payload); derr != nil {
			err = multierr.Append(err, fmt.Errorf("deliver %s -> %s: %w", src, dst, derr))
		}
	}
	return err
}

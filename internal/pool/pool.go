// Package pool implements bounded admission control with a low-water mark.
//
// A pool has a capacity and a smaller "room" threshold. Admitters that find
// the pool full either fail with contracts.ErrPoolExhausted or, for blocking
// pools, wait. Waiters are woken together once occupancy drops below room,
// not on every release, so they do not thrash a pool that is still nearly full.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/leandrodaf/midiclock/sdk/contracts"
)

// DefaultCapacity is used when a PoolConfig leaves Capacity unset.
const DefaultCapacity = 500

// Pool is safe for concurrent use.
type Pool struct {
	name     string
	capacity int
	room     int
	blocking bool

	mu       sync.Mutex
	occupied int
	waiters  int
	wake     chan struct{} // closed and replaced to wake every waiter
	closed   bool
	done     chan struct{}
}

// New builds a pool from cfg. A zero Capacity takes DefaultCapacity; Room
// defaults to half the capacity and is clamped to [1, Capacity].
func New(name string, cfg contracts.PoolConfig) (*Pool, error) {
	if cfg.Capacity < 0 || cfg.Room < 0 {
		return nil, fmt.Errorf("%w: pool %s: negative size", contracts.ErrQueueConfiguration, name)
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Room == 0 {
		cfg.Room = cfg.Capacity / 2
	}
	if cfg.Room < 1 {
		cfg.Room = 1
	}
	if cfg.Room > cfg.Capacity {
		cfg.Room = cfg.Capacity
	}
	return &Pool{
		name:     name,
		capacity: cfg.Capacity,
		room:     cfg.Room,
		blocking: cfg.Blocking,
		wake:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// TryAdmit takes a slot if one is free and never blocks.
func (p *Pool) TryAdmit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admitLocked()
}

// Admit takes a slot. Non-blocking pools behave like TryAdmit. Blocking pools
// wait for room until ctx is done, then fail with ErrPoolExhausted, or until
// the pool is closed, then fail with ErrClosed.
func (p *Pool) Admit(ctx context.Context) error {
	for {
		p.mu.Lock()
		err := p.admitLocked()
		if err == nil || !p.blocking {
			p.mu.Unlock()
			return err
		}
		wake := p.wake
		p.waiters++
		p.mu.Unlock()

		select {
		case <-wake:
			p.mu.Lock()
			p.waiters--
			p.mu.Unlock()
		case <-p.done:
			p.mu.Lock()
			p.waiters--
			p.mu.Unlock()
			return fmt.Errorf("%w: pool %s", contracts.ErrClosed, p.name)
		case <-ctx.Done():
			p.mu.Lock()
			p.waiters--
			p.mu.Unlock()
			return fmt.Errorf("%w: pool %s: %v", contracts.ErrPoolExhausted, p.name, ctx.Err())
		}
	}
}

func (p *Pool) admitLocked() error {
	if p.closed {
		return fmt.Errorf("%w: pool %s", contracts.ErrClosed, p.name)
	}
	if p.occupied >= p.capacity {
		return fmt.Errorf("%w: pool %s: %d of %d slots in use", contracts.ErrPoolExhausted, p.name, p.occupied, p.capacity)
	}
	p.occupied++
	return nil
}

// Release frees a slot. It reports whether blocked admitters were woken,
// which happens when occupancy crosses from at-or-above room to below it.
func (p *Pool) Release() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.occupied == 0 {
		return false
	}
	prev := p.occupied
	p.occupied--
	if prev >= p.room && p.occupied < p.room && p.waiters > 0 {
		close(p.wake)
		p.wake = make(chan struct{})
		return true
	}
	return false
}

// Close fails every blocked and future admission with ErrClosed. Slots
// already held can still be released. Closing twice is a no-op.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}

func (p *Pool) Occupied() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.occupied
}

// Waiters is the number of admitters currently blocked.
func (p *Pool) Waiters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiters
}

func (p *Pool) Capacity() int { return p.capacity }

func (p *Pool) Room() int { return p.room }

func (p *Pool) Name() string { return p.name }

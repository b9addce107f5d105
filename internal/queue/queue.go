// Package queue orders pending events by due time. Tick and real-time due
// times live in separate heaps and are only compared within their own domain.
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"

	"github.com/leandrodaf/midiclock/internal/pool"
	"github.com/leandrodaf/midiclock/sdk/contracts"
)

// Queue is safe for concurrent use. Every pending event holds one slot of the
// pool it was admitted through until it is dispatched or cancelled.
type Queue struct {
	pool *pool.Pool

	mu     sync.Mutex
	seq    uint64
	ticks  eventHeap
	micros eventHeap
	byID   map[contracts.EventID]*item
	closed bool
}

// New returns an empty queue admitting through p.
func New(p *pool.Pool) *Queue {
	return &Queue{
		pool: p,
		byID: make(map[contracts.EventID]*item),
	}
}

// Enqueue admits ev through the pool, waiting if the pool blocks, then
// inserts it. The returned ID is its insertion sequence number. Events due
// in the past are accepted and go out on the next DispatchDue.
func (q *Queue) Enqueue(ctx context.Context, ev contracts.ScheduledEvent) (contracts.EventID, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}
	if ev.Dest.Kind == contracts.DestDirect {
		return 0, fmt.Errorf("%w: direct events bypass the queue", contracts.ErrInvalidEvent)
	}
	if err := q.pool.Admit(ctx); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.pool.Release()
		return 0, fmt.Errorf("%w: queue closed", contracts.ErrClosed)
	}

	q.seq++
	ev.ID = contracts.EventID(q.seq)
	ev.Payload = append([]byte(nil), ev.Payload...)
	it := &item{ev: ev}
	heap.Push(q.heapFor(ev.Due.Domain), it)
	q.byID[ev.ID] = it
	return ev.ID, nil
}

// DispatchDue pops every event due at or before nowTicks or nowMicros in its
// own domain and releases its pool slot. Within a domain events come out in
// due order; where both domains have due events, the streams are merged by
// priority and insertion order without reordering either one.
func (q *Queue) DispatchDue(nowTicks, nowMicros uint64) []contracts.ScheduledEvent {
	q.mu.Lock()
	var out []contracts.ScheduledEvent
	for {
		t := q.ticks.peek()
		if t != nil && t.ev.Due.Value > nowTicks {
			t = nil
		}
		m := q.micros.peek()
		if m != nil && m.ev.Due.Value > nowMicros {
			m = nil
		}

		var h *eventHeap
		switch {
		case t == nil && m == nil:
			q.mu.Unlock()
			for range out {
				q.pool.Release()
			}
			return out
		case m == nil || (t != nil && before(t.ev, m.ev)):
			h = &q.ticks
		default:
			h = &q.micros
		}
		it := heap.Pop(h).(*item)
		delete(q.byID, it.ev.ID)
		out = append(out, it.ev)
	}
}

// Cancel withdraws a pending event and releases its slot. It reports false
// if the event is unknown or has already been dispatched.
func (q *Queue) Cancel(id contracts.EventID) bool {
	q.mu.Lock()
	it, ok := q.byID[id]
	if !ok {
		q.mu.Unlock()
		return false
	}
	heap.Remove(q.heapFor(it.ev.Due.Domain), it.index)
	delete(q.byID, id)
	q.mu.Unlock()

	q.pool.Release()
	return true
}

// NextMicros returns the earliest pending real-time due time.
func (q *Queue) NextMicros() (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it := q.micros.peek(); it != nil {
		return it.ev.Due.Value, true
	}
	return 0, false
}

// Close rejects further insertions and closes the pool, failing admitters
// that are still waiting. Pending events stay until dispatched or cancelled.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.pool.Close()
}

// Len returns the number of pending events per domain.
func (q *Queue) Len() (ticks, micros int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ticks.Len(), q.micros.Len()
}

func (q *Queue) heapFor(d contracts.TimeDomain) *eventHeap {
	if d == contracts.MicrosDomain {
		return &q.micros
	}
	return &q.ticks
}

package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/leandrodaf/midiclock/internal/pool"
	"github.com/leandrodaf/midiclock/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T, capacity int) (*Queue, *pool.Pool) {
	t.Helper()
	p, err := pool.New("output", contracts.PoolConfig{Capacity: capacity})
	require.NoError(t, err)
	return New(p), p
}

func enqueue(t *testing.T, q *Queue, due contracts.DueTime, prio contracts.Priority) contracts.EventID {
	t.Helper()
	id, err := q.Enqueue(context.Background(), contracts.ScheduledEvent{Due: due, Priority: prio})
	require.NoError(t, err)
	return id
}

func ids(evs []contracts.ScheduledEvent) []contracts.EventID {
	out := make([]contracts.EventID, len(evs))
	for i, ev := range evs {
		out[i] = ev.ID
	}
	return out
}

func TestDueOrderThenPriorityThenInsertion(t *testing.T) {
	q, _ := newQueue(t, 16)
	first := enqueue(t, q, contracts.AtTick(5), contracts.Normal)
	second := enqueue(t, q, contracts.AtTick(5), contracts.High)
	third := enqueue(t, q, contracts.AtTick(3), contracts.Normal)

	assert.Equal(t, []contracts.EventID{third}, ids(q.DispatchDue(3, 0)))
	assert.Empty(t, q.DispatchDue(4, 0))
	assert.Equal(t, []contracts.EventID{second, first}, ids(q.DispatchDue(5, 0)))
}

func TestEqualKeysKeepInsertionOrder(t *testing.T) {
	q, _ := newQueue(t, 64)
	var want []contracts.EventID
	for i := 0; i < 50; i++ {
		want = append(want, enqueue(t, q, contracts.AtTick(10), contracts.Normal))
	}
	assert.Equal(t, want, ids(q.DispatchDue(10, 0)))
}

func TestPastDueIsDispatchedNotDropped(t *testing.T) {
	q, _ := newQueue(t, 4)
	late := enqueue(t, q, contracts.AtTick(2), contracts.Normal)
	lateMicros := enqueue(t, q, contracts.AtMicros(10), contracts.Normal)

	got := q.DispatchDue(100, 5000)
	assert.ElementsMatch(t, []contracts.EventID{late, lateMicros}, ids(got))
}

func TestDomainsAreNotMixed(t *testing.T) {
	q, _ := newQueue(t, 4)
	enqueue(t, q, contracts.AtMicros(5), contracts.Normal)

	assert.Empty(t, q.DispatchDue(5, 0))
	assert.Len(t, q.DispatchDue(0, 5), 1)
}

func TestMergedDomainsKeepPriorityOrder(t *testing.T) {
	q, _ := newQueue(t, 8)
	a := enqueue(t, q, contracts.AtTick(1), contracts.Normal)
	b := enqueue(t, q, contracts.AtMicros(1), contracts.High)
	c := enqueue(t, q, contracts.AtTick(2), contracts.Normal)
	d := enqueue(t, q, contracts.AtMicros(2), contracts.Normal)

	assert.Equal(t, []contracts.EventID{b, a, c, d}, ids(q.DispatchDue(10, 10)))
}

func TestDispatchReleasesSlots(t *testing.T) {
	q, p := newQueue(t, 2)
	enqueue(t, q, contracts.AtTick(1), contracts.Normal)
	enqueue(t, q, contracts.AtTick(2), contracts.Normal)

	_, err := q.Enqueue(context.Background(), contracts.ScheduledEvent{Due: contracts.AtTick(3)})
	assert.ErrorIs(t, err, contracts.ErrPoolExhausted)

	q.DispatchDue(1, 0)
	assert.Equal(t, 1, p.Occupied())
	enqueue(t, q, contracts.AtTick(3), contracts.Normal)
	assert.Equal(t, 2, p.Occupied())
}

func TestCancel(t *testing.T) {
	q, p := newQueue(t, 4)
	keep := enqueue(t, q, contracts.AtTick(1), contracts.Normal)
	drop := enqueue(t, q, contracts.AtTick(1), contracts.Normal)
	micro := enqueue(t, q, contracts.AtMicros(1), contracts.Normal)

	assert.True(t, q.Cancel(drop))
	assert.False(t, q.Cancel(drop))
	assert.True(t, q.Cancel(micro))
	assert.Equal(t, 1, p.Occupied())

	assert.Equal(t, []contracts.EventID{keep}, ids(q.DispatchDue(1, 1)))
	assert.False(t, q.Cancel(keep), "cancel after dispatch is a no-op")
	assert.False(t, q.Cancel(999))
}

func TestEnqueueValidates(t *testing.T) {
	q, p := newQueue(t, 4)

	_, err := q.Enqueue(context.Background(), contracts.ScheduledEvent{Payload: make([]byte, 13)})
	assert.ErrorIs(t, err, contracts.ErrInvalidEvent)

	_, err = q.Enqueue(context.Background(), contracts.ScheduledEvent{Dest: contracts.Direct})
	assert.ErrorIs(t, err, contracts.ErrInvalidEvent)

	_, err = q.Enqueue(context.Background(), contracts.ScheduledEvent{Kind: contracts.TempoChangeEvent})
	assert.ErrorIs(t, err, contracts.ErrInvalidEvent)
	assert.Zero(t, p.Occupied())
}

func TestPayloadIsCopied(t *testing.T) {
	q, _ := newQueue(t, 4)
	payload := []byte{0x90, 60, 100}
	_, err := q.Enqueue(context.Background(), contracts.ScheduledEvent{Payload: payload})
	require.NoError(t, err)
	payload[0] = 0x80

	got := q.DispatchDue(0, 0)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{0x90, 60, 100}, got[0].Payload)
}

func TestConcurrentProducers(t *testing.T) {
	q, _ := newQueue(t, 1000)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := q.Enqueue(context.Background(), contracts.ScheduledEvent{Due: contracts.AtTick(7)})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got := q.DispatchDue(7, 0)
	require.Len(t, got, 800)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].ID, got[i].ID)
	}
	ticks, micros := q.Len()
	assert.Zero(t, ticks)
	assert.Zero(t, micros)
}

func TestNextMicros(t *testing.T) {
	q, _ := newQueue(t, 8)
	_, ok := q.NextMicros()
	assert.False(t, ok)

	enqueue(t, q, contracts.AtTick(1), contracts.Normal)
	enqueue(t, q, contracts.AtMicros(900), contracts.Normal)
	enqueue(t, q, contracts.AtMicros(300), contracts.Normal)

	next, ok := q.NextMicros()
	require.True(t, ok)
	assert.Equal(t, uint64(300), next)
}

func TestClosedQueueRejectsInsertion(t *testing.T) {
	q, p := newQueue(t, 8)
	enqueue(t, q, contracts.AtTick(1), contracts.Normal)
	q.Close()

	_, err := q.Enqueue(context.Background(), contracts.ScheduledEvent{})
	assert.ErrorIs(t, err, contracts.ErrClosed)
	assert.Equal(t, 1, p.Occupied())
}

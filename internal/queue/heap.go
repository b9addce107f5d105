package queue

import "github.com/leandrodaf/midiclock/sdk/contracts"

// item wraps a pending event with its position in the heap so Cancel can
// remove it in O(log n).
type item struct {
	ev    contracts.ScheduledEvent
	index int
}

// eventHeap implements container/heap.Interface as a min-heap on
// (due, High before Normal, insertion order).
type eventHeap []*item

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	a, b := h[i].ev, h[j].ev
	if a.Due.Value != b.Due.Value {
		return a.Due.Value < b.Due.Value
	}
	return before(a, b)
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

func (h eventHeap) peek() *item {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// before orders two events already known to be due: higher priority first,
// then insertion order.
func before(a, b contracts.ScheduledEvent) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

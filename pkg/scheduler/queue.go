package scheduler

import (
	"github.com/ef-ds/deque"

	"github.com/fortiblox/slot-listener/internal/types"
)

// RetryQueue is a FIFO of slots awaiting a fetch. A slot appears at most
// once; pushing a slot that is already queued is a no-op.
//
// The queue is NOT concurrency safe. It is owned by the scheduler loop.
type RetryQueue struct {
	queue   deque.Deque
	pending map[types.Slot]struct{}
}

// NewRetryQueue creates an empty queue.
func NewRetryQueue() *RetryQueue {
	return &RetryQueue{pending: make(map[types.Slot]struct{})}
}

// Push appends slot to the tail of the queue.
func (q *RetryQueue) Push(slot types.Slot) bool {
	if _, ok := q.pending[slot]; ok {
		return false
	}
	q.pending[slot] = struct{}{}
	q.queue.PushBack(slot)
	return true
}

// PushAll appends slots to the tail in order.
func (q *RetryQueue) PushAll(slots []types.Slot) {
	for _, slot := range slots {
		q.Push(slot)
	}
}

// PopN removes and returns up to n slots from the head of the queue.
func (q *RetryQueue) PopN(n int) []types.Slot {
	if n > q.queue.Len() {
		n = q.queue.Len()
	}
	out := make([]types.Slot, 0, n)
	for len(out) < n {
		v, ok := q.queue.PopFront()
		if !ok {
			break
		}
		slot := v.(types.Slot)
		delete(q.pending, slot)
		out = append(out, slot)
	}
	return out
}

// Contains reports whether slot is queued.
func (q *RetryQueue) Contains(slot types.Slot) bool {
	_, ok := q.pending[slot]
	return ok
}

// Len returns the number of queued slots.
func (q *RetryQueue) Len() int {
	return q.queue.Len()
}

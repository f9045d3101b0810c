// Package ring implements the bounded FIFO used by every scheduler queue
// (run, delay, real-time, aperiodic): a fixed-capacity circular buffer of
// task-slot ids. Capacity is fixed at construction and the buffer is never
// resized — callers that need more room admit fewer tasks, they don't grow
// the queue.
package ring

import "github.com/kernelcraft/rtkernel/kerrors"

// Queue is a fixed-capacity circular buffer of task-slot ids. The zero
// value is not usable; construct with [NewQueue]. A Queue does not
// interpret its entries beyond equality — it is the task table's job to
// know what an id means.
type Queue struct {
	slots []int32
	head  uint32 // mask(head) is the index of the oldest element
	tail  uint32 // mask(tail) is the next free write index
	mask  uint32
	cap   int
}

// NewQueue constructs a Queue able to hold exactly capacity entries.
// Internally the backing array is rounded up to the next power of two,
// plus one spare slot so head==tail unambiguously means empty, letting
// index arithmetic use a bitmask instead of a modulo; the externally
// visible capacity (via Cap) is always the requested value.
//
// Returns kerrors.ErrOutOfMemory if capacity is non-positive, mirroring
// the allocator-failure status a real create(cap) would return.
func NewQueue(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, kerrors.ErrOutOfMemory
	}
	size := uint32(1)
	for size < uint32(capacity)+1 {
		size <<= 1
	}
	return &Queue{
		slots: make([]int32, size),
		mask:  size - 1,
		cap:   capacity,
	}, nil
}

// Len returns the current number of queued entries.
func (q *Queue) Len() int {
	return int(q.tail - q.head)
}

// Cap returns the number of entries the queue can hold before PushHead or
// PushTail reports kerrors.ErrQueueFull.
func (q *Queue) Cap() int {
	return q.cap
}

// full reports whether the queue has reached its usable capacity.
func (q *Queue) full() bool {
	return q.Len() >= q.cap
}

// PushTail enqueues v at the tail (the position PopHead will reach last).
func (q *Queue) PushTail(v int32) error {
	if q.full() {
		return kerrors.ErrQueueFull
	}
	q.slots[q.tail&q.mask] = v
	q.tail++
	return nil
}

// PushHead enqueues v at the head (the position PopHead will reach next).
// Used by the best-effort policy to leave the task it dispatches at the
// front of the run queue without disturbing arrival order of everyone
// behind it; a yielding task goes back to the tail via PushTail.
func (q *Queue) PushHead(v int32) error {
	if q.full() {
		return kerrors.ErrQueueFull
	}
	q.head--
	q.slots[q.head&q.mask] = v
	return nil
}

// PopHead removes and returns the entry at the head of the queue.
func (q *Queue) PopHead() (int32, error) {
	if q.Len() == 0 {
		return 0, kerrors.ErrQueueEmpty
	}
	v := q.slots[q.head&q.mask]
	q.head++
	return v, nil
}

// PeekHead returns the head entry without removing it.
func (q *Queue) PeekHead() (int32, error) {
	if q.Len() == 0 {
		return 0, kerrors.ErrQueueEmpty
	}
	return q.slots[q.head&q.mask], nil
}

// Contains reports whether v is currently queued. Used by invariant checks
// (spec.md §8 property 3: no task appears twice); not on any hot path.
func (q *Queue) Contains(v int32) bool {
	for i := q.head; i != q.tail; i++ {
		if q.slots[i&q.mask] == v {
			return true
		}
	}
	return false
}

// Slice returns the queued entries in head-to-tail order. Used by tests
// and diagnostics; allocates, so it is never called from the tick path.
func (q *Queue) Slice() []int32 {
	out := make([]int32, 0, q.Len())
	for i := q.head; i != q.tail; i++ {
		out = append(out, q.slots[i&q.mask])
	}
	return out
}

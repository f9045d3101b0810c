// Package tcb implements the Task Control Block table: a fixed array of
// slots, each describing one task, indexed by slot id exactly as spec.md
// §3 and §9 describe ("fixed-size TCB table with id sentinel... avoid
// pointer ownership cycles; queues hold ids, not pointers").
package tcb

import (
	"fmt"
	"sync"

	"github.com/kernelcraft/rtkernel/kerrors"
)

// ID identifies a slot in the Table. It is the only thing scheduler
// queues ever store.
type ID = int32

// State is one of the task lifecycle states from spec.md §3.
type State int

const (
	// IDLE marks an unused slot.
	IDLE State = iota
	// READY marks a runnable task, enqueued on exactly one class queue.
	READY
	// RUNNING marks the single currently-executing task.
	RUNNING
	// BLOCKED marks a task awaiting an external event.
	BLOCKED
	// DELAYED marks a task sleeping a known number of ticks.
	DELAYED
)

// String renders the state for logs and diagnostics.
func (s State) String() string {
	switch s {
	case IDLE:
		return "IDLE"
	case READY:
		return "READY"
	case RUNNING:
		return "RUNNING"
	case BLOCKED:
		return "BLOCKED"
	case DELAYED:
		return "DELAYED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Context is the opaque saved execution context handed to hal.Backend.
// tcb does not know its shape; it only stores and returns it.
type Context any

// TCB describes one task. The Table hands out copies via Snapshot;
// mutation goes through Table.With, which holds the Table's lock while
// the callback runs.
type TCB struct {
	ID   ID
	Name string

	State    State
	Priority uint8 // static base priority, 0..255
	PrioRem  int   // aging counter for best-effort round robin

	Delay int // remaining ticks before a DELAYED task becomes READY

	// Real-time parameters, in ticks. Period > 0 iff the task is real-time.
	Period   int
	Capacity int
	Deadline int

	// Per-job remainders, refilled at each release.
	PeriodRem   int
	CapacityRem int
	DeadlineRem int

	RTJobs         uint64
	BGJobs         uint64
	DeadlineMisses uint64

	Entry func()
	Stack []byte // owned; freed (nilled) exactly when State transitions to IDLE
	Ctx   Context

	// OtherData is reserved scratch space for policy-specific bookkeeping
	// (the polling server does not use it: its fuel is its own TCB's
	// CapacityRem; other policies may want a slot without a schema
	// change — see spec.md §3 "other_data: reserved for policy-specific
	// scratch").
	OtherData any
}

// IsRealTime reports whether the task is a real-time task (spec.md §3:
// "A task is real-time iff period > 0").
func (t *TCB) IsRealTime() bool {
	return t.Period > 0
}

// Table is the fixed-size TCB arena. The zero value is not usable;
// construct with NewTable.
type Table struct {
	mu    sync.Mutex
	slots []TCB
	free  []ID // free-list of IDLE slot ids, LIFO
}

// NewTable constructs a Table with exactly maxTasks slots, all IDLE.
func NewTable(maxTasks int) (*Table, error) {
	if maxTasks <= 0 {
		return nil, kerrors.ErrOutOfMemory
	}
	t := &Table{
		slots: make([]TCB, maxTasks),
		free:  make([]ID, maxTasks),
	}
	for i := range t.slots {
		t.slots[i].ID = ID(i)
		t.slots[i].State = IDLE
		// free-list built so that slot 0 is allocated first (reserved by
		// spec.md §4.8 boot order for the idle task).
		t.free[maxTasks-1-i] = ID(i)
	}
	return t, nil
}

// Alloc reserves a free slot, initializes it with the given fields, and
// returns its id. Returns kerrors.ErrTooManyTasks if no slot is free.
func (t *Table) Alloc(name string, priority uint8, period, capacity, deadline int, entry func(), stack []byte) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.free) == 0 {
		return 0, kerrors.ErrTooManyTasks
	}
	id := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	slot := &t.slots[id]
	*slot = TCB{
		ID:          id,
		Name:        name,
		State:       READY,
		Priority:    priority,
		PrioRem:     int(priority),
		Period:      period,
		Capacity:    capacity,
		Deadline:    deadline,
		PeriodRem:   period,
		CapacityRem: capacity,
		DeadlineRem: deadline,
		Entry:       entry,
		Stack:       stack,
	}
	return id, nil
}

// Free releases a slot back to the free-list, dropping its stack
// reference so the backing array can be collected. Returns
// kerrors.ErrInvalidID if id is out of range or already IDLE.
func (t *Table) Free(id ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, err := t.slotLocked(id)
	if err != nil {
		return err
	}
	slot.State = IDLE
	slot.Stack = nil
	slot.Entry = nil
	slot.Ctx = nil
	t.free = append(t.free, id)
	return nil
}

func (t *Table) slotLocked(id ID) (*TCB, error) {
	if id < 0 || int(id) >= len(t.slots) {
		return nil, kerrors.ErrInvalidID
	}
	slot := &t.slots[id]
	if slot.State == IDLE {
		return nil, kerrors.ErrInvalidID
	}
	return slot, nil
}

// With runs fn with exclusive access to the slot identified by id.
// Returns kerrors.ErrInvalidID if the slot is out of range or IDLE.
//
// All field mutation on a TCB happens either from the tick ISR or from a
// task with interrupts disabled (spec.md §5); With is the mutual
// exclusion mechanism standing in for that discipline in this in-process
// simulation; the kernel brackets wider critical sections with its own
// mutex, not with hal.Backend's DisableInterrupts.
func (t *Table) With(id ID, fn func(*TCB)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, err := t.slotLocked(id)
	if err != nil {
		return err
	}
	fn(slot)
	return nil
}

// Snapshot returns a copy of the slot's current state. Used by tests,
// metrics, and diagnostics; never on the tick hot path.
func (t *Table) Snapshot(id ID) (TCB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, err := t.slotLocked(id)
	if err != nil {
		return TCB{}, err
	}
	return *slot, nil
}

// Len returns the table's fixed slot count (spec.md's MAX_TASKS).
func (t *Table) Len() int {
	return len(t.slots)
}

// ForEach calls fn for every non-IDLE slot, in ascending id order. fn must
// not call back into the Table (ForEach holds the lock for its duration).
func (t *Table) ForEach(fn func(*TCB)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].State != IDLE {
			fn(&t.slots[i])
		}
	}
}

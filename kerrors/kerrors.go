// Package kerrors defines the kernel's status values and fatal panic codes.
//
// API calls return one of the sentinel errors below rather than a bare
// string, so callers can match with [errors.Is]. The dispatcher itself
// never returns an error to a task; it escalates unrecoverable invariant
// violations straight to [PanicCode] via the kernel's Panic path.
package kerrors

import "errors"

// Status errors returned by the task lifecycle API (spec §7).
var (
	// ErrOutOfMemory is returned when the allocator (a stack, or a
	// queue's backing array) cannot be satisfied.
	ErrOutOfMemory = errors.New("rtkernel: out of memory")

	// ErrTooManyTasks is returned when the TCB table has no free slot.
	ErrTooManyTasks = errors.New("rtkernel: too many tasks")

	// ErrAdmissionRefused is returned when a real-time spawn would push
	// total utilization past the policy's bound.
	ErrAdmissionRefused = errors.New("rtkernel: admission refused")

	// ErrInvalidID is returned for operations on a non-existent or IDLE slot.
	ErrInvalidID = errors.New("rtkernel: invalid task id")

	// ErrQueueFull is local to the FIFO; never surfaced past the dispatcher.
	ErrQueueFull = errors.New("rtkernel: queue full")

	// ErrQueueEmpty is local to the FIFO; never surfaced past the dispatcher.
	ErrQueueEmpty = errors.New("rtkernel: queue empty")
)

// PanicCode identifies a fatal, invariant-corrupting condition. These are
// never recoverable: the kernel calls Panic and halts rather than let
// scheduler state drift out of the invariants spec.md §3 requires.
type PanicCode int

const (
	// PanicQueueOverflow fires when a queue overflows after admission had
	// already accepted the task that produced the overflowing entry.
	PanicQueueOverflow PanicCode = iota + 1

	// PanicNoRunnableTask fires when the dispatcher must switch but finds
	// no runnable task and the idle task is missing.
	PanicNoRunnableTask

	// PanicCorruptTCB fires when a TCB invariant (spec §3) is observed
	// violated outside of the narrow window the dispatcher itself is
	// updating it.
	PanicCorruptTCB
)

// String renders the code for diagnostics and log lines.
func (c PanicCode) String() string {
	switch c {
	case PanicQueueOverflow:
		return "QUEUE_OVERFLOW"
	case PanicNoRunnableTask:
		return "NO_RUNNABLE_TASK"
	case PanicCorruptTCB:
		return "CORRUPT_TCB"
	default:
		return "UNKNOWN_PANIC"
	}
}

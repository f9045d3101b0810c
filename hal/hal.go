// Package hal defines the hardware-abstraction-layer seam the kernel core
// consumes (spec.md §6) and ships one concrete backend: an in-process
// simulation built on goroutines and channels rather than real
// interrupt-controller/timer/assembly primitives.
//
// The spec's context-switch primitive is classically a setjmp/longjmp
// pair: save(ctx) returns 0 directly and non-zero when jumped back into.
// That "returns twice" contract has no type-safe Go expression (spec.md
// §9 names this exactly as the reason to re-architect). Save/Restore
// below keep the same two names and the same "value a resumed Save call
// sees" contract, but as two ordinary, single-return functions: Save
// blocks the calling task's goroutine until some later Restore wakes it,
// and returns the value that Restore was given — never "returns twice".
package hal

import "github.com/kernelcraft/rtkernel/tcb"

// Context is the handle a Backend hands back from PrepareStack. Its
// concrete type is backend-specific and opaque to the kernel, exactly as
// spec.md §4.2 describes; the TCB table only ever stores it as an any
// (queues hold task ids, never contexts).
type Context any

// Backend is the hardware seam: tick timer, interrupt masking, idle, and
// the context-switch primitive. A real embedded target would implement
// this with arch-specific assembly behind Save/Restore; Simulated
// implements it entirely in Go using goroutines parked on channels.
type Backend interface {
	// PrepareStack constructs a Context whose first Restore starts entry
	// running as if on a stack of the given size. size must be positive
	// and a multiple of the machine word size, and is validated even though the simulated backend has no literal
	// stack to lay out, so spawn-time failures match real-hardware
	// behavior (spec.md §4.2's stack bootstrap contract).
	PrepareStack(id tcb.ID, entry func(), size int) (Context, error)

	// Restore transfers control to ctx as if a pending Save on it had
	// returned resumeValue. It blocks until ctx next calls Save (pausing
	// itself again) or its entry function returns, and reports which:
	// exited is true iff entry returned, meaning the dispatcher must
	// treat the task as terminated (spec.md §4.2's exit contract).
	//
	// A negative resumeValue on a ctx that has never been restored before
	// terminates it without ever running entry, reporting exited — the
	// mechanism a task lifecycle API uses to kill a task that was never
	// dispatched, so its goroutine doesn't park forever.
	//
	// There is no explicit "from" context: the task that was running
	// before this call is already parked inside its own Save call (or
	// inside the goroutine launched by PrepareStack, before its first
	// Restore) — that parked state is the entire saved context a real
	// backend would need to resume it later.
	Restore(ctx Context, resumeValue int) (exited bool)

	// Save is called by the currently running task (from inside its own
	// entry function, via the kernel's Yield/DelayMs/blocking paths) to
	// give up control. It returns only when a later Restore targets this
	// same ctx, yielding the value passed to that Restore.
	Save(ctx Context) (resumeValue int)

	// Idle parks the calling goroutine (the idle task) until the next
	// tick, standing in for cpu_idle().
	Idle()

	// DisableInterrupts masks the tick timer until the returned function
	// is called, mirroring di()/ei() bracketing. Nesting is the caller's
	// responsibility, exactly as spec.md §5 specifies.
	DisableInterrupts() (enable func())

	// CPUID reports which simulated core this Backend instance represents.
	CPUID() int

	// Ticks returns a channel that receives once per simulated tick. The
	// dispatcher's run loop ranges over it.
	Ticks() <-chan struct{}

	// Close stops the tick timer and releases backend resources.
	Close()
}

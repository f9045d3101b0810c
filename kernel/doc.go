// Package kernel implements the Process Control Block, the dispatcher
// (the tick ISR of spec.md §4.7), the task lifecycle API of spec.md §4.6,
// and the initialization order of spec.md §4.8, following
// eventloop/loop.go's shape: a single struct owning all shared mutable
// state, a run loop consuming external events (there, timers/ingress
// queues; here, hal.Backend's tick channel), and mutation confined to
// that loop plus a handful of lock-guarded entry points.
//
// # Interrupts-off, restated
//
// spec.md §5 requires the dispatcher, queue operations, and TCB mutations
// to run with interrupts disabled. Go has no interrupt-off primitive, and
// this module's Simulated hal.Backend has no real asynchronous
// preemption to guard against in the first place (see hal's package
// doc): at any instant exactly one goroutine is "live" — either the
// dispatcher's tick, or the one task hal.Backend.Restore is currently
// blocked on — because Restore and Save are a blocking rendezvous, not a
// fire-and-forget signal. That handoff is itself the mutual-exclusion
// mechanism standing in for "interrupts disabled": tick-side code and the
// running task's own code are never concurrently mutating shared state,
// so the Kernel's mutex exists only to guard against genuinely external
// callers (an application spawning tasks from its own goroutines,
// concurrent with the dispatcher loop), not against the task/dispatcher
// handoff itself. It is always released before a call that blocks on the
// rendezvous (Restore from the dispatcher, Save from a task), so neither
// side ever holds it while waiting on the other.
//
// # Task entry signature
//
// The source's ptask takes no arguments; a task discovers its own id via
// self_id(), implicitly addressing "whichever task is currently running."
// Go has no portable, idiomatic stand-in for an implicit "current task"
// — goroutine-local storage is not something the language offers, and
// faking it would mean smuggling state through globals. Entry functions
// here instead take an explicit *Task handle (func(*Task)), the same way
// blocking operations elsewhere take an explicit context.Context rather
// than reading one from ambient state. SelfID, Yield, and DelayMs become
// methods on that handle rather than free functions.
package kernel

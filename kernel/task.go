package kernel

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kernelcraft/rtkernel/kerrors"
	"github.com/kernelcraft/rtkernel/klog"
	"github.com/kernelcraft/rtkernel/sched"
	"github.com/kernelcraft/rtkernel/tcb"
)

// ticksForMs converts a millisecond delay to a tick count at the
// configured tick period, rounding up so a caller never wakes early.
func ticksForMs(ms int, timeSlice time.Duration) int {
	if timeSlice <= 0 {
		return ms
	}
	d := time.Duration(ms) * time.Millisecond
	ticks := int(d / timeSlice)
	if d%timeSlice != 0 {
		ticks++
	}
	return ticks
}

// Task is the handle a spawned task's entry function receives, standing
// in for the implicit "current task" the source addresses via self_id()
// (see package doc). Yield, DelayMs, and ID are the task-facing half of
// the lifecycle API; Spawn, Kill, and SchedLock are Kernel methods,
// callable from any task (including about itself) or from application
// setup code before the first dispatch.
type Task struct {
	id tcb.ID
	k  *Kernel
}

// ID implements self_id().
func (t *Task) ID() tcb.ID { return t.id }

// Yield implements spec.md §4.6 yield(): records a cooperative switch and
// returns the caller to the tail of its class queue, without any capacity
// charge, then blocks until the dispatcher resumes it.
func (t *Task) Yield() {
	t.k.yield(t.id)
}

// DelayMs implements spec.md §4.6 delay_ms(ms): converts to ticks, moves
// the caller to the delay queue, and blocks until the delay sweep (§4.7
// step 2) releases it.
func (t *Task) DelayMs(ms int) {
	t.k.delayMs(t.id, ms)
}

// Kill implements self-kill: equivalent to t.k.Kill(t.ID()), provided as
// a convenience since self-kill is explicitly legal (spec.md §4.6).
func (t *Task) Kill() error {
	return t.k.Kill(t.id)
}

// TaskClass disambiguates the two kinds of period-0 task spec.md §4.5
// leaves implicit: a best-effort task (run queue, priority round-robin)
// and an aperiodic job (aperiodic queue, drained by the polling server).
// Both have period 0 and are therefore not IsRealTime; the source tells
// them apart only by which queue a given spawn call happens to target,
// which Go's type system expresses better as an explicit enum than as an
// unstated calling convention.
type TaskClass int

const (
	// ClassRealTime tasks have period > 0 and go through admission
	// control and the RT queue.
	ClassRealTime TaskClass = iota
	// ClassBestEffort tasks have period 0 and go to the run queue.
	ClassBestEffort
	// ClassAperiodic tasks have period 0 and go to the aperiodic queue,
	// drained only by the polling server.
	ClassAperiodic
)

// SpawnParams is spec.md §4.6 spawn()'s argument list, widened with an
// explicit Class (see TaskClass) and an explicit Entry signature (see
// package doc).
type SpawnParams struct {
	Name      string
	Entry     func(self *Task)
	Priority  uint8
	Period    int
	Capacity  int
	Deadline  int
	StackSize int
	Class     TaskClass
}

// Spawn implements spec.md §4.6 spawn(). For ClassRealTime it runs
// admission control (spec.md §4.3) against every currently-admitted
// real-time task before touching the TCB table, so a refusal leaves no
// trace.
func (k *Kernel) Spawn(p SpawnParams) (tcb.ID, error) {
	if p.Class != ClassAperiodic && p.StackSize <= 0 {
		return 0, fmt.Errorf("kernel: spawn %q: %w", p.Name, kerrors.ErrOutOfMemory)
	}

	if p.Class == ClassRealTime {
		if p.Capacity <= 0 || p.Capacity > p.Deadline || p.Deadline > p.Period {
			return 0, fmt.Errorf("kernel: spawn %q: invalid real-time parameters: %w", p.Name, kerrors.ErrAdmissionRefused)
		}
		existing := k.admittedRTParams()
		candidate := sched.RTParams{Capacity: p.Capacity, Period: p.Period}
		admit := sched.AdmitEDF
		if _, isEDF := k.rtPolicy.(sched.EDF); !isEDF {
			admit = sched.AdmitRMA
		}
		if !admit(existing, candidate) {
			klog.SpawnRefused(p.Name, kerrors.ErrAdmissionRefused)
			return 0, fmt.Errorf("kernel: spawn %q: %w", p.Name, kerrors.ErrAdmissionRefused)
		}
	}

	k.mu.Lock()

	// An aperiodic job is a pure capacity descriptor consumed by the
	// polling server (see polling.Server.Run): it owns no goroutine, no
	// stack, and no entry point to prepare.
	if p.Class == ClassAperiodic {
		id, err := k.table.Alloc(p.Name, p.Priority, 0, p.Capacity, 0, nil, nil)
		if err != nil {
			k.mu.Unlock()
			klog.SpawnRefused(p.Name, err)
			return 0, fmt.Errorf("kernel: spawn %q: %w", p.Name, err)
		}
		k.pushTail(k.aperiodicQueue, id)
		k.mu.Unlock()
		klog.Spawn(id, p.Name, 0)
		return id, nil
	}

	stack := make([]byte, p.StackSize)
	id, err := k.table.Alloc(p.Name, p.Priority, p.Period, p.Capacity, p.Deadline, nil, stack)
	if err != nil {
		k.mu.Unlock()
		klog.SpawnRefused(p.Name, err)
		return 0, fmt.Errorf("kernel: spawn %q: %w", p.Name, err)
	}

	task := &Task{id: id, k: k}
	entry := func() { p.Entry(task) }
	ctx, err := k.backend.PrepareStack(id, entry, p.StackSize)
	if err != nil {
		_ = k.table.Free(id)
		k.mu.Unlock()
		klog.SpawnRefused(p.Name, err)
		return 0, fmt.Errorf("kernel: spawn %q: %w", p.Name, err)
	}
	_ = k.table.With(id, func(t *tcb.TCB) { t.Ctx = ctx })

	if p.Class == ClassRealTime {
		k.pushTail(k.rtQueue, id)
	} else {
		k.pushTail(k.runQueue, id)
	}
	k.mu.Unlock()

	klog.Spawn(id, p.Name, p.Period)
	return id, nil
}

// admittedRTParams snapshots every currently-admitted real-time task's
// (capacity, period), for the next admission check.
func (k *Kernel) admittedRTParams() []sched.RTParams {
	var out []sched.RTParams
	k.table.ForEach(func(t *tcb.TCB) {
		if t.IsRealTime() {
			out = append(out, sched.RTParams{Capacity: t.Capacity, Period: t.Period})
		}
	})
	return out
}

// Kill implements spec.md §4.6 kill(): removes the task from whichever
// queue holds it and frees its slot. Self-kill is legal; killing a task
// that has never been dispatched wakes its parked goroutine once more
// with a negative resumeValue so it terminates instead of leaking
// (see hal.Backend.Restore's contract).
func (k *Kernel) Kill(id tcb.ID) error {
	k.mu.Lock()
	snap, err := k.table.Snapshot(id)
	if err != nil {
		k.mu.Unlock()
		return err
	}
	ctx := snap.Ctx
	self := id == k.current

	removeFromQueue(k, k.rtQueue, id)
	removeFromQueue(k, k.runQueue, id)
	removeFromQueue(k, k.delayQueue, id)
	removeFromQueue(k, k.aperiodicQueue, id)
	_ = k.table.Free(id)
	k.mu.Unlock()

	klog.Kill(id)

	if self {
		// The caller is killing itself: its slot is already freed, so it
		// must never execute another instruction against it. Goexit runs
		// this goroutine's deferred recover in hal.Simulated's PrepareStack
		// closure, which reports exited=true to whatever Restore call is
		// waiting on it, exactly as a normal entry return would.
		runtime.Goexit()
	}
	if ctx != nil {
		// Not the running task: its goroutine is parked (or never yet
		// dispatched) waiting on Save/its own first resume. Wake it once
		// more so it terminates; this runs on its own goroutine since
		// Restore blocks until the target pauses or exits, and the
		// caller of Kill must not block on that.
		go k.backend.Restore(ctx, killResume)
	}
	return nil
}

// yield is Task.Yield's kernel-side half. The idle task is never
// enqueued at all (see spawnIdle): it is dispatched only as selectNext's
// fallback when both queues are empty, so its own yield must not push it
// onto the run queue.
func (k *Kernel) yield(id tcb.ID) {
	k.mu.Lock()
	k.metrics.RecordCooperativeSwitch()
	if id != k.idleID {
		// isRT is read out of the closure, and the queue push happens
		// after table.With returns: table.With holds the TCB table's own
		// lock for the closure's duration, and an overflow escalating to
		// Panic needs that same lock (via diagSnapshot) to build its
		// diagnostic.
		var isRT bool
		_ = k.table.With(id, func(t *tcb.TCB) {
			t.State = tcb.READY
			isRT = t.IsRealTime()
		})
		if isRT {
			// Removed from rtQueue at dispatch time (see selectNext); a
			// yield just re-enqueues it for the rest of this release.
			k.pushTail(k.rtQueue, id)
		} else {
			// Stays physically queued while RUNNING (see
			// sched.BestEffort); move it from head to tail to rotate.
			removeFromQueue(k, k.runQueue, id)
			k.pushTail(k.runQueue, id)
		}
	}
	ctx := k.ctxOf(id)
	k.mu.Unlock()

	if k.backend.Save(ctx) < 0 {
		runtime.Goexit()
	}
}

// delayMs is Task.DelayMs's kernel-side half.
func (k *Kernel) delayMs(id tcb.ID, ms int) {
	k.mu.Lock()
	ticks := ticksForMs(ms, k.cfg.TimeSlice)
	if ticks < 1 {
		ticks = 1
	}
	_ = k.table.With(id, func(t *tcb.TCB) {
		t.Delay = ticks
		t.State = tcb.DELAYED
	})
	// A best-effort task stays physically queued while RUNNING (see
	// yield); take it off the run queue so it is not picked while asleep.
	removeFromQueue(k, k.runQueue, id)
	k.pushTail(k.delayQueue, id)
	ctx := k.ctxOf(id)
	k.mu.Unlock()

	if k.backend.Save(ctx) < 0 {
		runtime.Goexit()
	}
}

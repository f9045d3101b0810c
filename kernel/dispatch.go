package kernel

import (
	"time"

	"github.com/kernelcraft/rtkernel/tcb"
)

// tick implements spec.md §4.7's seven dispatcher steps. It runs with
// k.mu held for every state transition, released only across the final
// Restore call, which blocks until the dispatched task next pauses
// itself (Yield, DelayMs, a blocking collaborator, or exit) — the baton
// this cooperative backend uses in place of a hardware timer interrupt
// (see package doc).
func (k *Kernel) tick() {
	start := time.Now()
	k.mu.Lock()

	k.metrics.RecordInterrupt(k.cfg.TimeSlice)

	k.delaySweep()
	k.rtReleaseSweep()
	k.currentAccounting()

	prev := k.current
	next := prev
	if !k.schedLocked {
		if picked, ok := k.selectNext(); ok {
			next = picked
		} else {
			next = k.idleID
		}
	}

	// A current task that self-killed inside a locked critical section
	// leaves next pointing at a freed slot; fall back to idle rather than
	// restore a context that no longer exists.
	if _, err := k.table.Snapshot(next); err != nil {
		next = k.idleID
	}

	if next != prev {
		k.metrics.RecordPreemptiveSwitch()
		k.current = next
	}
	// next's own last yield/delay already moved its State and queue
	// membership; RUNNING is set unconditionally here (idempotent when
	// next == prev) since nothing else ever sets it.
	_ = k.table.With(next, func(t *tcb.TCB) { t.State = tcb.RUNNING })
	nextCtx := k.ctxOf(next)
	k.mu.Unlock()

	exited := k.backend.Restore(nextCtx, 1)
	k.metrics.RecordTickLatency(time.Since(start))
	if exited {
		k.handleExit(next)
	}
}

// delaySweep implements spec.md §4.7 step 2: decrement delay on every
// delayed task, moving any that reach zero to its class queue.
func (k *Kernel) delaySweep() {
	n := k.delayQueue.Len()
	for i := 0; i < n; i++ {
		id, err := k.delayQueue.PopHead()
		if err != nil {
			break
		}
		var released, isRT bool
		_ = k.table.With(id, func(t *tcb.TCB) {
			if t.Delay > 0 {
				t.Delay--
			}
			if t.Delay == 0 {
				t.State = tcb.READY
				released = true
				isRT = t.IsRealTime()
			}
		})
		if !released {
			k.pushTail(k.delayQueue, id)
			continue
		}
		if isRT {
			k.pushTail(k.rtQueue, id)
		} else {
			k.pushTail(k.runQueue, id)
		}
	}
}

// rtReleaseSweep implements spec.md §4.7 step 3: decrement period_rem on
// every real-time task, releasing a new job (and counting a deadline
// miss if the previous job never finished) whenever it wraps.
//
// The id currently dispatched is identified by k.current, not by TCB
// state: by the time any tick runs, the previously-dispatched task has
// already cooperatively yielded (see task.go's yield/delayMs), which
// already moved its State and queue membership — rtReleaseSweep must
// not re-enqueue it a second time on top of that.
func (k *Kernel) rtReleaseSweep() {
	current := k.current
	// Queue pushes happen after ForEach returns, not inside its callback:
	// table.ForEach holds the TCB table's own lock for the callback's
	// duration, and an overflow escalating to Panic needs that same lock
	// (via diagSnapshot's table.ForEach) to build its diagnostic — calling
	// it back in would deadlock on a lock this goroutine already holds.
	var toRelease []tcb.ID
	k.table.ForEach(func(t *tcb.TCB) {
		if !t.IsRealTime() {
			return
		}
		if t.PeriodRem > 0 {
			t.PeriodRem--
		}
		if t.PeriodRem > 0 {
			return
		}
		// Leftover capacity_rem on the polling server just means its last
		// release drained the aperiodic queue before spending its whole
		// budget — expected, not a missed deadline.
		if t.CapacityRem > 0 && t.ID != k.serverID {
			t.DeadlineMisses++
		}
		t.PeriodRem = t.Period
		t.CapacityRem = t.Capacity
		t.DeadlineRem = t.Deadline
		t.RTJobs++
		if t.ID == current {
			// Its job is abandoned and restarted in place (spec.md §9);
			// currentAccounting this same tick reasons about it next.
			return
		}
		if t.State != tcb.READY {
			t.State = tcb.READY
			toRelease = append(toRelease, t.ID)
		}
	})
	for _, id := range toRelease {
		k.pushTail(k.rtQueue, id)
	}
}

// currentAccounting implements spec.md §4.7 step 4, charging one tick
// against whichever task k.current names — not whichever task is marked
// tcb.RUNNING, since the previously-dispatched task's own yield/delayMs
// call already moved its State away from RUNNING before this tick began
// (see rtReleaseSweep's comment). The polling server is skipped: its
// capacity_rem is spent in whole job-sized increments by
// polling.Server.Run, not by a per-tick countdown, so a generic decrement
// here would double-charge it (see polling.Server's doc).
//
// A job that exhausts its capacity is set BLOCKED rather than the
// literal READY spec.md §4.7 names, and excised from rtQueue if its own
// yield already re-queued it there: BLOCKED is excluded from invariant 3
// (queued set equals {READY, DELAYED}), whereas a job awaiting its next
// release is deliberately not queued.
func (k *Kernel) currentAccounting() {
	id := k.current
	if id == k.idleID || id == k.serverID {
		return
	}
	var exhausted bool
	_ = k.table.With(id, func(t *tcb.TCB) {
		if !t.IsRealTime() {
			return
		}
		deadlineWasPositive := t.DeadlineRem > 0
		if t.CapacityRem > 0 {
			t.CapacityRem--
		}
		if t.DeadlineRem > 0 {
			t.DeadlineRem--
		}
		if t.CapacityRem == 0 {
			t.State = tcb.BLOCKED
			exhausted = true
		}
		// Only the tick that crosses deadline_rem from positive to zero
		// counts a miss; it would otherwise double-count every
		// subsequent tick the job stays unfinished past its deadline.
		if deadlineWasPositive && t.DeadlineRem == 0 && t.CapacityRem > 0 {
			t.DeadlineMisses++
		}
	})
	if exhausted {
		removeFromQueue(k, k.rtQueue, id)
	}
}

// selectNext implements spec.md §4.7 step 6: the real-time queue takes
// priority over best-effort selection whenever it is non-empty.
func (k *Kernel) selectNext() (tcb.ID, bool) {
	if k.rtQueue.Len() > 0 {
		ready := k.rtQueue.Slice()
		if id, ok := k.rtPolicy.Pick(ready, k.table); ok {
			removeFromQueue(k, k.rtQueue, id)
			return id, true
		}
	}
	return k.bePolicy.Pick(k.runQueue, k.table)
}

// handleExit cleans up after a task whose entry function returned (or
// panicked) instead of being explicitly killed: idempotent with respect
// to a slot a self-kill already freed, since Free and the queue removals
// are themselves no-ops against an already-IDLE slot.
func (k *Kernel) handleExit(id tcb.ID) {
	k.mu.Lock()
	removeFromQueue(k, k.rtQueue, id)
	removeFromQueue(k, k.runQueue, id)
	removeFromQueue(k, k.delayQueue, id)
	removeFromQueue(k, k.aperiodicQueue, id)
	_ = k.table.Free(id)
	k.mu.Unlock()
}

// Package sched implements the scheduling policies spec.md §4.3 and §4.4
// describe as pure selection functions over the shared [tcb.Table]:
// rate-monotonic and earliest-deadline-first policies for real-time
// tasks, admission control for both, and the best-effort priority
// round-robin policy. None of these types hold scheduling state of their
// own — priority_rem, period_rem, deadline_rem all live on the TCB slot
// itself, so a policy is safe to swap at runtime without migrating
// bookkeeping, matching "Scheduler policies: functions that pick the next
// runnable task" from spec.md §2.
package sched

import "github.com/kernelcraft/rtkernel/tcb"

// RTPolicy picks the next task to run from the set of currently ready
// real-time task ids. Pick must not mutate table; the dispatcher performs
// all state transitions itself (spec.md §9: policies select, they do not
// mutate).
type RTPolicy interface {
	// Pick returns the chosen id and true, or (0, false) if ready is empty.
	Pick(ready []tcb.ID, table *tcb.Table) (tcb.ID, bool)
}

// RMA selects the ready real-time task with the smallest period, ties
// broken by lower slot id (spec.md §4.3).
type RMA struct{}

// Pick implements RTPolicy.
func (RMA) Pick(ready []tcb.ID, table *tcb.Table) (tcb.ID, bool) {
	return pickBy(ready, table, func(t *tcb.TCB) int { return t.Period })
}

// EDF selects the ready real-time task with the smallest deadline_rem,
// ties broken by lower slot id (spec.md §4.3).
type EDF struct{}

// Pick implements RTPolicy.
func (EDF) Pick(ready []tcb.ID, table *tcb.Table) (tcb.ID, bool) {
	return pickBy(ready, table, func(t *tcb.TCB) int { return t.DeadlineRem })
}

// pickBy scans ready once, keeping the id whose key(t) is smallest; a tie
// keeps the lower slot id, whatever order ready lists them in (the
// dispatcher passes the RT queue in FIFO order).
func pickBy(ready []tcb.ID, table *tcb.Table, key func(*tcb.TCB) int) (tcb.ID, bool) {
	var (
		best    tcb.ID
		bestKey int
		found   bool
	)
	for _, id := range ready {
		snap, err := table.Snapshot(id)
		if err != nil {
			continue
		}
		k := key(&snap)
		if !found || k < bestKey || (k == bestKey && id < best) {
			best, bestKey, found = id, k, true
		}
	}
	return best, found
}

// BestEffort implements the weighted round-robin policy of spec.md §4.4.
// It holds no state: priority_rem lives on the TCB, and the run queue
// itself (not BestEffort) owns rotation order.
type BestEffort struct{}

// Pick inspects (and mutates) the run queue's head per spec.md §4.4 steps
// 1-3: a task with priority_rem > 0 is dispatched with priority_rem
// decremented; a task that has exhausted its quantum has priority_rem
// reset and is rotated to the tail, and the new head is examined in its
// place. Repeats until a task is dispatched or the queue drains, in which
// case it returns (0, false) and the caller dispatches the idle task.
//
// A single pass of runQueue.Len() iterations is not enough: with the
// queue's sole task mid-reset (priority_rem just hit 0), one pass only
// resets it and rotates it back to the head, never reaching the second
// look that would dispatch it on its now-refilled priority_rem — costing
// that task every other tick to idle even though the queue never
// drained. A second pass gives every task one reset and one dispatch
// attempt per call; 2*n also bounds an all-priority-0 run queue
// (priority_rem never goes positive, so every pass only resets) so Pick
// still terminates and falls back to idle instead of spinning forever.
//
// Unlike RTPolicy.Pick, this needs the run queue itself (rotation is an
// FIFO operation, not a selection over a fixed snapshot), so it is not an
// RTPolicy; the dispatcher calls it directly when the RT queue is empty.
func (BestEffort) Pick(runQueue runQueue, table *tcb.Table) (tcb.ID, bool) {
	n := runQueue.Len()
	if n == 0 {
		return 0, false
	}
	for i := 0; i < 2*n; i++ {
		id, err := runQueue.PopHead()
		if err != nil {
			return 0, false
		}
		var dispatch bool
		table.With(id, func(t *tcb.TCB) {
			if t.PrioRem > 0 {
				t.PrioRem--
				dispatch = true
				return
			}
			t.PrioRem = int(t.Priority)
		})
		if dispatch {
			_ = runQueue.PushHead(id)
			return id, true
		}
		_ = runQueue.PushTail(id)
	}
	return 0, false
}

// runQueue is the subset of *ring.Queue's API BestEffort.Pick needs,
// narrowed to avoid an import cycle concern and to keep the policy
// testable against a fake. *ring.Queue satisfies it.
type runQueue interface {
	Len() int
	PopHead() (int32, error)
	PushHead(int32) error
	PushTail(int32) error
}

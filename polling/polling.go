// Package polling implements the aperiodic-job dispatch mechanism of
// spec.md §4.5: a standing real-time task that spends a per-release fuel
// budget draining the aperiodic queue, modeled after catrate's
// sliding-window budget bookkeeping narrowed to the single per-period
// window the polling server needs.
package polling

import (
	"github.com/kernelcraft/rtkernel/kerrors"
	"github.com/kernelcraft/rtkernel/ring"
	"github.com/kernelcraft/rtkernel/tcb"
)

// Outcome reports what one call to Run accomplished, so the dispatcher
// (and tests) can observe the two-phase dispatch spec.md §9 calls for
// without inspecting the aperiodic queue directly.
type Outcome int

const (
	// OutcomeYieldEmpty means the aperiodic queue was empty; the server
	// gave up its remaining fuel until its next release.
	OutcomeYieldEmpty Outcome = iota
	// OutcomeCompleted means the head aperiodic job ran to completion
	// and its slot was freed.
	OutcomeCompleted
	// OutcomePartial means fuel ran out mid-job; the job was re-queued
	// at the tail with its remaining capacity reduced, and the server
	// yielded the rest of this release.
	OutcomePartial
)

// Server identifies the polling server's own task slot. It holds no
// budget state itself: the server is just another RT TCB from the
// dispatcher's point of view (spec.md §9's resolution of the "who owns
// scheduling during aperiodic execution" open question), so its fuel
// lives in that TCB's own capacity_rem field, refilled by the same RT
// release sweep that refills every other real-time task's capacity_rem —
// Run takes the current fuel as a plain argument and returns what is left
// rather than owning a mutable field that could drift out of sync with
// the TCB the dispatcher already tracks.
type Server struct {
	ID tcb.ID
}

// Run implements spec.md §4.5 steps 1-4 for one dispatch of the server,
// given the fuel available this release.
func (s *Server) Run(fuel int, aperiodic *ring.Queue, table *tcb.Table) (remainingFuel int, outcome Outcome, err error) {
	jobID, err := aperiodic.PeekHead()
	if err != nil {
		if err == kerrors.ErrQueueEmpty {
			return fuel, OutcomeYieldEmpty, nil
		}
		return fuel, OutcomeYieldEmpty, err
	}

	job, err := table.Snapshot(jobID)
	if err != nil {
		// The job vanished from under the queue (killed out of band);
		// drop the stale entry and report as if the queue were empty
		// this pass rather than panicking the whole kernel over it.
		_, _ = aperiodic.PopHead()
		return fuel, OutcomeYieldEmpty, nil
	}

	if fuel >= job.CapacityRem {
		if _, err := aperiodic.PopHead(); err != nil {
			return fuel, OutcomeYieldEmpty, err
		}
		fuel -= job.CapacityRem
		if err := table.Free(jobID); err != nil {
			return fuel, OutcomeYieldEmpty, err
		}
		return fuel, OutcomeCompleted, nil
	}

	if _, err := aperiodic.PopHead(); err != nil {
		return fuel, OutcomeYieldEmpty, err
	}
	remaining := job.CapacityRem - fuel
	fuel = 0
	if err := table.With(jobID, func(t *tcb.TCB) {
		t.CapacityRem = remaining
	}); err != nil {
		return fuel, OutcomeYieldEmpty, err
	}
	if err := aperiodic.PushTail(jobID); err != nil {
		return fuel, OutcomeYieldEmpty, err
	}
	return fuel, OutcomePartial, nil
}

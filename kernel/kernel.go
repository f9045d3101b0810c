package kernel

import (
	"sync"

	"github.com/kernelcraft/rtkernel/hal"
	"github.com/kernelcraft/rtkernel/kconfig"
	"github.com/kernelcraft/rtkernel/kmetrics"
	"github.com/kernelcraft/rtkernel/polling"
	"github.com/kernelcraft/rtkernel/ring"
	"github.com/kernelcraft/rtkernel/sched"
	"github.com/kernelcraft/rtkernel/tcb"
)

// killResume is the sentinel resumeValue Kill uses to wake a parked task
// goroutine one last time so it can terminate instead of leaking blocked
// forever on hal.Backend.Save. Any negative value works per hal's
// contract; -1 is chosen for no reason beyond being the conventional
// "not a real value" sentinel.
const killResume = -1

// Kernel holds the PCB, the TCB table, the four class queues, and the
// hal.Backend this instance dispatches onto. One Kernel is one logical
// CPU (spec.md §5: "each core runs an independent instance").
type Kernel struct {
	cfg     kconfig.Config
	backend hal.Backend

	table          *tcb.Table
	runQueue       *ring.Queue
	delayQueue     *ring.Queue
	rtQueue        *ring.Queue
	aperiodicQueue *ring.Queue

	rtPolicy sched.RTPolicy
	bePolicy sched.BestEffort

	metrics kmetrics.PCB

	mu          sync.Mutex
	current     tcb.ID
	idleID      tcb.ID
	schedLocked bool

	server   *polling.Server
	serverID tcb.ID

	firstDispatch sync.Once
}

// Metrics returns a snapshot of the PCB counters (spec.md §3).
func (k *Kernel) Metrics() kmetrics.Snapshot {
	return k.metrics.Snapshot()
}

// Current returns the id of the task currently dispatched.
func (k *Kernel) Current() tcb.ID {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// SchedLock sets the global scheduling-lock flag spec.md §4.6 describes:
// while locked, tick performs its accounting steps but never switches
// context. Used during critical init, and released by the idle task on
// its first run (spec.md §4.8).
func (k *Kernel) SchedLock(locked bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.schedLocked = locked
}

// TaskSnapshot exposes one task's current TCB state for inspection
// (spec.md §6: "current task counters, deadline-miss counts, per-task
// rtjobs/bgjobs").
func (k *Kernel) TaskSnapshot(id tcb.ID) (tcb.TCB, error) {
	return k.table.Snapshot(id)
}

// removeFromQueue drains q and rewrites it with every entry except id,
// reporting whether id was present. Queues expose only head/tail
// operations (spec.md §4.1's "never resized, opaque entries" contract
// gives no arbitrary-position remove), so every caller that must excise
// an arbitrary, possibly-mid-queue entry (Kill, yield, delayMs, and the
// tick path's currentAccounting, selectNext and handleExit) rebuilds the
// queue via the existing primitives instead. O(n) in queue length,
// bounded by MaxTasks.
func removeFromQueue(k *Kernel, q *ring.Queue, id tcb.ID) bool {
	found := false
	n := q.Len()
	for i := 0; i < n; i++ {
		v, err := q.PopHead()
		if err != nil {
			break
		}
		if v == id {
			found = true
			continue
		}
		k.pushTail(q, v)
	}
	return found
}

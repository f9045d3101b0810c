package kernel

import (
	"fmt"
	"os"
	"time"

	"github.com/kernelcraft/rtkernel/diag"
	"github.com/kernelcraft/rtkernel/kerrors"
	"github.com/kernelcraft/rtkernel/klog"
	"github.com/kernelcraft/rtkernel/ring"
	"github.com/kernelcraft/rtkernel/tcb"
)

// Panic implements spec.md §7's fatal path: an invariant-corrupting
// condition (queue overflow after admission already accepted the task,
// or a context switch finding no runnable task) must never be absorbed
// as an ordinary status error. It logs, writes an atomic diagnostic dump
// of the current PCB/TCB state, then calls Go's own panic — halting the
// calling goroutine with a diagnostic, exactly as spec.md §7 names.
//
// Called from sites that already hold k.mu (dispatch.go's sweeps,
// task.go's lifecycle calls); it does not itself lock, since by the time
// an invariant is found broken the caller's own in-progress mutation may
// not be safe to unlock out of.
func (k *Kernel) Panic(code kerrors.PanicCode, detail string) {
	klog.Panic(code, detail)

	path := fmt.Sprintf("rtkernel-panic-%s-%d.diag", code, time.Now().UnixNano())
	if err := diag.Dump(path, code, detail, k.diagSnapshot()); err != nil {
		fmt.Fprintf(os.Stderr, "rtkernel: diagnostic dump failed: %v\n", err)
	}

	panic(fmt.Sprintf("rtkernel: fatal %s: %s", code, detail))
}

// diagSnapshot collects the PCB counters and every live TCB slot, the
// state a post-mortem on a fatal panic most needs.
func (k *Kernel) diagSnapshot() any {
	type snapshot struct {
		Metrics any
		Current tcb.ID
		Tasks   []tcb.TCB
	}
	var tasks []tcb.TCB
	k.table.ForEach(func(t *tcb.TCB) { tasks = append(tasks, *t) })
	return snapshot{
		Metrics: k.metrics.Snapshot(),
		Current: k.current,
		Tasks:   tasks,
	}
}

// pushTail enqueues id at q's tail, escalating to the fatal panic path on
// overflow: every queue here is sized to MaxTasks and every enqueue
// follows admission that already accepted the task, so a full queue
// means invariant 3 (every READY/DELAYED task queued exactly once) is
// already broken — exactly the condition spec.md §7 names as fatal
// rather than an ordinary status error.
func (k *Kernel) pushTail(q *ring.Queue, id tcb.ID) {
	if err := q.PushTail(id); err != nil {
		k.Panic(kerrors.PanicQueueOverflow, fmt.Sprintf("push tail id=%d: %v", id, err))
	}
}

// pushHead is pushTail's head-side counterpart, for putting a task at the
// front of its class queue rather than behind everyone else. No kernel
// path currently enqueues at the head.
func (k *Kernel) pushHead(q *ring.Queue, id tcb.ID) {
	if err := q.PushHead(id); err != nil {
		k.Panic(kerrors.PanicQueueOverflow, fmt.Sprintf("push head id=%d: %v", id, err))
	}
}

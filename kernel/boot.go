package kernel

import (
	"context"
	"fmt"

	"github.com/kernelcraft/rtkernel/hal"
	"github.com/kernelcraft/rtkernel/kconfig"
	"github.com/kernelcraft/rtkernel/klog"
	"github.com/kernelcraft/rtkernel/polling"
	"github.com/kernelcraft/rtkernel/ring"
	"github.com/kernelcraft/rtkernel/sched"
	"github.com/kernelcraft/rtkernel/tcb"
)

// PollingServerParams configures the standing polling server spec.md
// §4.5 describes: a real-time task of (period, capacity, deadline =
// period) whose capacity is spent on aperiodic jobs instead of its own
// body.
type PollingServerParams struct {
	Period   int
	Capacity int
}

// Options configures Boot beyond kconfig.Config: which real-time policy
// to run, and the polling server's own RT parameters.
type Options struct {
	RTPolicy      sched.RTPolicy // nil defaults to RMA
	PollingServer PollingServerParams
}

// Boot implements spec.md §4.8's initialization order up through "spawn
// polling server": construct PCB/TCB/queues, lock scheduling, spawn the
// idle task at slot 0, spawn the polling server. It returns with
// scheduling still locked; the caller spawns its own application tasks
// (spec.md's "app_main") before calling Run, whose first iteration
// performs "first dispatch".
func Boot(cfg kconfig.Config, backend hal.Backend, opts Options) (*Kernel, error) {
	table, err := tcb.NewTable(cfg.MaxTasks)
	if err != nil {
		return nil, fmt.Errorf("kernel: boot: %w", err)
	}
	queueCap := cfg.MaxTasks
	runQueue, err := ring.NewQueue(queueCap)
	if err != nil {
		return nil, fmt.Errorf("kernel: boot: %w", err)
	}
	delayQueue, err := ring.NewQueue(queueCap)
	if err != nil {
		return nil, fmt.Errorf("kernel: boot: %w", err)
	}
	rtQueue, err := ring.NewQueue(queueCap)
	if err != nil {
		return nil, fmt.Errorf("kernel: boot: %w", err)
	}
	aperiodicQueue, err := ring.NewQueue(queueCap)
	if err != nil {
		return nil, fmt.Errorf("kernel: boot: %w", err)
	}

	rtPolicy := opts.RTPolicy
	if rtPolicy == nil {
		rtPolicy = sched.RMA{}
	}

	k := &Kernel{
		cfg:            cfg,
		backend:        backend,
		table:          table,
		runQueue:       runQueue,
		delayQueue:     delayQueue,
		rtQueue:        rtQueue,
		aperiodicQueue: aperiodicQueue,
		rtPolicy:       rtPolicy,
		schedLocked:    true,
	}

	klog.Boot(backend.CPUID(), "bring-up", map[string]any{"max_tasks": cfg.MaxTasks})

	idleID, err := k.spawnIdle()
	if err != nil {
		return nil, fmt.Errorf("kernel: boot: spawn idle: %w", err)
	}
	k.idleID = idleID
	k.current = idleID

	if opts.PollingServer.Period > 0 {
		serverID, err := k.spawnPollingServer(opts.PollingServer)
		if err != nil {
			return nil, fmt.Errorf("kernel: boot: spawn polling server: %w", err)
		}
		k.serverID = serverID
	}

	return k, nil
}

// spawnIdle bootstraps the idle task directly (bypassing Spawn's
// admission/queueing path: the idle task is never enqueued, it is the
// dispatcher's fallback when every queue drains, spec.md §4.4 step 3).
func (k *Kernel) spawnIdle() (tcb.ID, error) {
	id, err := k.table.Alloc("idle", 0, 0, 0, 0, nil, nil)
	if err != nil {
		return 0, err
	}
	task := &Task{id: id, k: k}
	entry := func() { k.idleLoop(task) }
	ctx, err := k.backend.PrepareStack(id, entry, 256)
	if err != nil {
		_ = k.table.Free(id)
		return 0, err
	}
	_ = k.table.With(id, func(t *tcb.TCB) { t.Ctx = ctx })
	return id, nil
}

// idleLoop is the idle task's entry body: release the scheduling lock
// the moment it first runs (spec.md §4.8: "sched_lock is released by the
// idle task once it first runs"), then yield forever. It deliberately
// never calls hal.Backend.Idle: that primitive exists for a bare-metal
// backend's real CPU-sleep instruction; here the dispatcher's own tick
// loop already owns waiting for the next tick; having idle independently
// read the same channel would make two consumers race over ticks meant
// for one.
func (k *Kernel) idleLoop(self *Task) {
	k.SchedLock(false)
	for {
		self.Yield()
	}
}

// spawnPollingServer spawns the standing real-time task that backs the
// polling server (spec.md §4.5): deadline equals period, per spec.
func (k *Kernel) spawnPollingServer(p PollingServerParams) (tcb.ID, error) {
	id, err := k.Spawn(SpawnParams{
		Name:      "polling-server",
		Class:     ClassRealTime,
		Period:    p.Period,
		Capacity:  p.Capacity,
		Deadline:  p.Period,
		StackSize: 256,
		Entry:     func(self *Task) { k.runPollingServer(self) },
	})
	if err != nil {
		return 0, err
	}
	k.server = &polling.Server{ID: id}
	return id, nil
}

// runPollingServer is the polling server's task body: each dispatch,
// drain one step of aperiodic work per spec.md §4.5, then yield. Fuel is
// the server's own capacity_rem — refilled by the dispatcher's RT release
// sweep exactly as any other real-time task's capacity_rem is refilled,
// since the server is just another RT TCB from the outer scheduler's
// point of view (see currentAccounting's special case, which leaves
// capacity_rem alone for the server instead of decrementing it
// generically: this function is the sole owner of how the server's
// capacity is spent).
func (k *Kernel) runPollingServer(self *Task) {
	for {
		k.mu.Lock()
		snap, err := k.table.Snapshot(k.serverID)
		if err == nil {
			remaining, outcome, runErr := k.server.Run(snap.CapacityRem, k.aperiodicQueue, k.table)
			if runErr == nil {
				_ = k.table.With(k.serverID, func(t *tcb.TCB) {
					t.CapacityRem = remaining
					if outcome == polling.OutcomeCompleted {
						t.BGJobs++
					}
				})
			}
		}
		k.mu.Unlock()
		self.Yield()
	}
}

// Run drives the dispatcher loop: on its first call it performs "first
// dispatch" (spec.md §4.8's final init step), unconditionally restoring
// the idle task so it can release the scheduling lock; thereafter it
// ranges over the backend's tick channel, calling tick on each one, until
// ctx is done.
func (k *Kernel) Run(ctx context.Context) error {
	k.bootstrap()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-k.backend.Ticks():
			k.tick()
		}
	}
}

// bootstrap performs spec.md §4.8's final init step, "first dispatch",
// exactly once: an unconditional Restore of the idle task, which runs
// until its first Yield releases the scheduling lock (see idleLoop).
// Separated from Run so tests can drive tick directly without a real
// backend ticker.
func (k *Kernel) bootstrap() {
	k.firstDispatch.Do(func() {
		k.backend.Restore(k.ctxOf(k.idleID), 1)
	})
}

func (k *Kernel) ctxOf(id tcb.ID) hal.Context {
	snap, err := k.table.Snapshot(id)
	if err != nil {
		return nil
	}
	return snap.Ctx
}

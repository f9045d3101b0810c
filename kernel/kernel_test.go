package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelcraft/rtkernel/hal"
	"github.com/kernelcraft/rtkernel/kconfig"
	"github.com/kernelcraft/rtkernel/sched"
	"github.com/kernelcraft/rtkernel/tcb"
)

func newTestKernel(t *testing.T, maxTasks int, rtPolicy sched.RTPolicy) (*Kernel, hal.Backend) {
	t.Helper()
	backend := hal.NewSimulated(0, time.Millisecond)
	t.Cleanup(backend.Close)
	cfg := kconfig.Config{MaxTasks: maxTasks, TimeSlice: time.Millisecond}
	k, err := Boot(cfg, backend, Options{RTPolicy: rtPolicy})
	require.NoError(t, err)
	return k, backend
}

// periodicBody loops forever, calling Yield once per unit of its own
// worst-case capacity and incrementing done after each completed job.
func periodicBody(capacity int, done *int) func(*Task) {
	return func(self *Task) {
		for {
			for i := 0; i < capacity; i++ {
				self.Yield()
			}
			*done++
		}
	}
}

// TestRMATwoTaskScenario follows spec.md §8 scenario 1.
func TestRMATwoTaskScenario(t *testing.T) {
	k, _ := newTestKernel(t, 8, sched.RMA{})

	var doneA, doneB int
	_, err := k.Spawn(SpawnParams{
		Name: "a", Class: ClassRealTime, Period: 10, Capacity: 2, Deadline: 10,
		StackSize: 256, Entry: periodicBody(2, &doneA),
	})
	require.NoError(t, err)
	idB, err := k.Spawn(SpawnParams{
		Name: "b", Class: ClassRealTime, Period: 15, Capacity: 3, Deadline: 15,
		StackSize: 256, Entry: periodicBody(3, &doneB),
	})
	require.NoError(t, err)

	k.bootstrap()
	for i := 0; i < 150; i++ {
		k.tick()
	}

	snapA, err := k.TaskSnapshot(1)
	require.NoError(t, err)
	snapB, err := k.TaskSnapshot(idB)
	require.NoError(t, err)

	assert.Zero(t, snapA.DeadlineMisses)
	assert.Zero(t, snapB.DeadlineMisses)
	assert.InDelta(t, 15, snapA.RTJobs, 1)
	assert.InDelta(t, 10, snapB.RTJobs, 1)
	assert.InDelta(t, 15, doneA, 1)
	assert.InDelta(t, 10, doneB, 1)
}

// TestEDFThreeTaskScenario follows spec.md §8 scenario 2.
func TestEDFThreeTaskScenario(t *testing.T) {
	k, _ := newTestKernel(t, 8, sched.EDF{})

	var done1, done2, done3 int
	_, err := k.Spawn(SpawnParams{
		Name: "t1", Class: ClassRealTime, Period: 4, Capacity: 1, Deadline: 4,
		StackSize: 256, Entry: periodicBody(1, &done1),
	})
	require.NoError(t, err)
	_, err = k.Spawn(SpawnParams{
		Name: "t2", Class: ClassRealTime, Period: 6, Capacity: 2, Deadline: 6,
		StackSize: 256, Entry: periodicBody(2, &done2),
	})
	require.NoError(t, err)
	_, err = k.Spawn(SpawnParams{
		Name: "t3", Class: ClassRealTime, Period: 8, Capacity: 3, Deadline: 8,
		StackSize: 256, Entry: periodicBody(3, &done3),
	})
	require.NoError(t, err)

	k.bootstrap()
	for i := 0; i < 240; i++ {
		k.tick()
	}

	for _, id := range []tcb.ID{1, 2, 3} {
		snap, err := k.TaskSnapshot(id)
		require.NoError(t, err)
		assert.Zerof(t, snap.DeadlineMisses, "task %d should have zero deadline misses", id)
	}
}

// TestRMARejectsOveradmission follows spec.md §8 scenario 3's shape: four
// tasks (C=10,T=100) admitted at utilization 0.40 under RMA, a fifth
// (C=50,T=100) pushing the sum to 0.90, past the n=5 bound of 0.7434,
// must be refused.
func TestRMARejectsOveradmission(t *testing.T) {
	k, _ := newTestKernel(t, 8, sched.RMA{})

	for i := 0; i < 4; i++ {
		_, err := k.Spawn(SpawnParams{
			Name: "load", Class: ClassRealTime, Period: 100, Capacity: 10,
			Deadline: 100, StackSize: 256, Entry: func(self *Task) {
				for {
					self.Yield()
				}
			},
		})
		require.NoError(t, err)
	}

	_, err := k.Spawn(SpawnParams{
		Name: "overflow", Class: ClassRealTime, Period: 100, Capacity: 50,
		Deadline: 100, StackSize: 256, Entry: func(self *Task) {},
	})
	assert.Error(t, err)
}

// TestBestEffortCPUShareConvergesToPriority follows spec.md §8 scenario
// 5: three best-effort tasks with priorities 10, 5, 1 and no RT load see
// their dispatch counts converge toward that ratio.
func TestBestEffortCPUShareConvergesToPriority(t *testing.T) {
	k, _ := newTestKernel(t, 8, sched.RMA{})

	counts := make([]int, 3)
	priorities := []uint8{10, 5, 1}
	for i, p := range priorities {
		i := i
		_, err := k.Spawn(SpawnParams{
			Name: "be", Class: ClassBestEffort, Priority: p, StackSize: 256,
			Entry: func(self *Task) {
				for {
					counts[i]++
					self.Yield()
				}
			},
		})
		require.NoError(t, err)
	}

	k.bootstrap()
	for i := 0; i < 1600; i++ {
		k.tick()
	}

	total := counts[0] + counts[1] + counts[2]
	require.Greater(t, total, 0)
	shareHigh := float64(counts[0]) / float64(total)
	shareLow := float64(counts[2]) / float64(total)
	assert.Greater(t, shareHigh, shareLow, "priority-10 task should get a larger CPU share than priority-1")
}

// TestDelayMsReleasesAfterConfiguredTicks follows spec.md §8 scenario 6
// at a 1ms tick: delay_ms(100) must return after at least 100 ticks and
// fewer than 102.
func TestDelayMsReleasesAfterConfiguredTicks(t *testing.T) {
	k, _ := newTestKernel(t, 8, sched.RMA{})

	woke := make(chan struct{}, 1)
	_, err := k.Spawn(SpawnParams{
		Name: "sleeper", Class: ClassBestEffort, Priority: 1, StackSize: 256,
		Entry: func(self *Task) {
			self.DelayMs(100)
			woke <- struct{}{}
			for {
				self.Yield()
			}
		},
	})
	require.NoError(t, err)

	k.bootstrap()
	var wokeAtTick = -1
	for i := 1; i <= 110 && wokeAtTick < 0; i++ {
		k.tick()
		select {
		case <-woke:
			wokeAtTick = i
		default:
		}
	}

	require.GreaterOrEqual(t, wokeAtTick, 100)
	require.Less(t, wokeAtTick, 102)
}

// TestKillIsIdempotent follows spec.md §8's law: kill(id); kill(id)
// returns INVALID_ID on the second call.
func TestKillIsIdempotent(t *testing.T) {
	k, _ := newTestKernel(t, 8, sched.RMA{})

	id, err := k.Spawn(SpawnParams{
		Name: "victim", Class: ClassBestEffort, Priority: 1, StackSize: 256,
		Entry: func(self *Task) {
			for {
				self.Yield()
			}
		},
	})
	require.NoError(t, err)

	require.NoError(t, k.Kill(id))
	assert.Error(t, k.Kill(id))
}

// TestKillBeforeFirstDispatchDoesNotLeak kills a spawned task whose
// goroutine has never been resumed, exercising hal.Backend.Restore's
// negative-resumeValue termination contract.
func TestKillBeforeFirstDispatchDoesNotLeak(t *testing.T) {
	k, _ := newTestKernel(t, 8, sched.RMA{})

	id, err := k.Spawn(SpawnParams{
		Name: "never-run", Class: ClassBestEffort, Priority: 1, StackSize: 256,
		Entry: func(self *Task) { panic("must never run") },
	})
	require.NoError(t, err)

	require.NoError(t, k.Kill(id))

	_, err = k.TaskSnapshot(id)
	assert.Error(t, err)
}

// TestPollingServerDrainsAperiodicJobs wires the polling server into a
// running kernel and checks that queued aperiodic jobs are eventually
// freed.
func TestPollingServerDrainsAperiodicJobs(t *testing.T) {
	backend := hal.NewSimulated(0, time.Millisecond)
	t.Cleanup(backend.Close)
	cfg := kconfig.Config{MaxTasks: 8, TimeSlice: time.Millisecond}
	k, err := Boot(cfg, backend, Options{
		RTPolicy:      sched.RMA{},
		PollingServer: PollingServerParams{Period: 10, Capacity: 3},
	})
	require.NoError(t, err)

	jobIDs := make([]tcb.ID, 0, 3)
	for _, capacity := range []int{5, 1, 2} {
		id, err := k.Spawn(SpawnParams{
			Name: "job", Class: ClassAperiodic, Capacity: capacity,
		})
		require.NoError(t, err)
		jobIDs = append(jobIDs, id)
	}

	k.bootstrap()
	for i := 0; i < 60; i++ {
		k.tick()
	}

	for _, id := range jobIDs {
		_, err := k.TaskSnapshot(id)
		assert.Error(t, err, "job %d should have been freed once fully drained", id)
	}
}

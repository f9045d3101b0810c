package kmetrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountersAccumulate(t *testing.T) {
	var pcb PCB

	pcb.RecordCooperativeSwitch()
	pcb.RecordCooperativeSwitch()
	pcb.RecordPreemptiveSwitch()
	pcb.RecordInterrupt(5 * time.Millisecond)
	pcb.RecordInterrupt(5 * time.Millisecond)

	snap := pcb.Snapshot()
	assert.EqualValues(t, 2, snap.CooperativeSwitches)
	assert.EqualValues(t, 1, snap.PreemptiveSwitches)
	assert.EqualValues(t, 2, snap.Interrupts)
	assert.EqualValues(t, 10000, snap.TickTimeMicros)
}

func TestTickLatencyPercentiles(t *testing.T) {
	var pcb PCB
	for i := 1; i <= 100; i++ {
		pcb.RecordTickLatency(time.Duration(i) * time.Microsecond)
	}

	snap := pcb.Snapshot()
	assert.InDelta(t, 50, snap.TickLatencyP50.Microseconds(), 2)
	assert.InDelta(t, 99, snap.TickLatencyP99.Microseconds(), 2)
}

func TestTickLatencyEmptyIsZero(t *testing.T) {
	var pcb PCB
	snap := pcb.Snapshot()
	assert.Zero(t, snap.TickLatencyP50)
	assert.Zero(t, snap.TickLatencyP99)
}

func TestInterruptCounterMonotonic(t *testing.T) {
	// spec.md §8 asks for a monotonic deadline-miss counter; that counter
	// lives on tcb.TCB (per-task), not here. This checks the same
	// never-decreasing discipline on the PCB's interrupts counter.
	var pcb PCB
	prev := pcb.Snapshot().Interrupts
	for i := 0; i < 10; i++ {
		pcb.RecordInterrupt(time.Microsecond)
		next := pcb.Snapshot().Interrupts
		assert.GreaterOrEqual(t, next, prev)
		prev = next
	}
}

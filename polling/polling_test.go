package polling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelcraft/rtkernel/ring"
	"github.com/kernelcraft/rtkernel/tcb"
)

func spawnAperiodic(t *testing.T, table *tcb.Table, q *ring.Queue, capacity int) tcb.ID {
	t.Helper()
	id, err := table.Alloc("aperiodic", 0, 0, capacity, 0, nil, nil)
	require.NoError(t, err)
	require.NoError(t, q.PushTail(id))
	return id
}

func TestRunYieldsWhenQueueEmpty(t *testing.T) {
	table, err := tcb.NewTable(2)
	require.NoError(t, err)
	q, err := ring.NewQueue(2)
	require.NoError(t, err)

	s := &Server{}
	fuel, outcome, err := s.Run(3, q, table)
	require.NoError(t, err)
	assert.Equal(t, OutcomeYieldEmpty, outcome)
	assert.Equal(t, 3, fuel, "an empty drain must not spend fuel")
}

// TestPollingServerScenario follows spec.md §8 scenario 4: server
// (C=3,T=10) with aperiodic jobs of capacity {5,1,2} queued before the
// first release.
func TestPollingServerScenario(t *testing.T) {
	table, err := tcb.NewTable(4)
	require.NoError(t, err)
	q, err := ring.NewQueue(4)
	require.NoError(t, err)

	job1 := spawnAperiodic(t, table, q, 5)
	_ = spawnAperiodic(t, table, q, 1)
	_ = spawnAperiodic(t, table, q, 2)

	s := &Server{}
	fuel := 3 // release at tick 0

	fuel, outcome, err := s.Run(fuel, q, table)
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, outcome, "job1 (cap 5) exceeds the first release's fuel")
	assert.Equal(t, 0, fuel)
	snap, err := table.Snapshot(job1)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CapacityRem, "job1 should carry 5-3=2 capacity into its next release")

	fuel = 3 // release at tick 10

	fuel, outcome, err = s.Run(fuel, q, table)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome, "job2 (cap 1) completes within the second release")
	assert.Equal(t, 2, fuel)

	fuel, outcome, err = s.Run(fuel, q, table)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome, "job3 (cap 2) completes within the same release")
	assert.Equal(t, 0, fuel)

	fuel, outcome, err = s.Run(fuel, q, table)
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, outcome, "job1's remaining 2 capacity exceeds the exhausted fuel")

	fuel = 3 // release at tick 20

	fuel, outcome, err = s.Run(fuel, q, table)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome, "job1 finally completes")
	assert.Equal(t, 1, fuel)

	_, outcome, err = s.Run(fuel, q, table)
	require.NoError(t, err)
	assert.Equal(t, OutcomeYieldEmpty, outcome, "queue is drained")
}

func TestRunDropsStaleJobSilently(t *testing.T) {
	table, err := tcb.NewTable(2)
	require.NoError(t, err)
	q, err := ring.NewQueue(2)
	require.NoError(t, err)
	require.NoError(t, q.PushTail(99)) // no such slot was ever allocated

	s := &Server{}
	_, outcome, err := s.Run(3, q, table)
	require.NoError(t, err)
	assert.Equal(t, OutcomeYieldEmpty, outcome)
	assert.Equal(t, 0, q.Len())
}

package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelcraft/rtkernel/ring"
	"github.com/kernelcraft/rtkernel/tcb"
)

func newTable(t *testing.T, specs ...tcb.TCB) (*tcb.Table, []tcb.ID) {
	t.Helper()
	table, err := tcb.NewTable(len(specs) + 1)
	require.NoError(t, err)
	ids := make([]tcb.ID, len(specs))
	for i, s := range specs {
		id, err := table.Alloc(s.Name, s.Priority, s.Period, s.Capacity, s.Deadline, nil, nil)
		require.NoError(t, err)
		require.NoError(t, table.With(id, func(tc *tcb.TCB) {
			tc.PeriodRem = s.PeriodRem
			tc.DeadlineRem = s.DeadlineRem
		}))
		ids[i] = id
	}
	return table, ids
}

func TestRMAPicksSmallestPeriod(t *testing.T) {
	table, ids := newTable(t,
		tcb.TCB{Name: "slow", Period: 15},
		tcb.TCB{Name: "fast", Period: 10},
	)

	got, ok := (RMA{}).Pick(ids, table)
	require.True(t, ok)
	assert.Equal(t, ids[1], got)
}

func TestRMATiesBreakByLowerID(t *testing.T) {
	table, ids := newTable(t,
		tcb.TCB{Name: "a", Period: 10},
		tcb.TCB{Name: "b", Period: 10},
	)

	got, ok := (RMA{}).Pick(ids, table)
	require.True(t, ok)
	assert.Equal(t, ids[0], got)
}

func TestEDFPicksSmallestDeadlineRem(t *testing.T) {
	table, ids := newTable(t,
		tcb.TCB{Name: "later", DeadlineRem: 8},
		tcb.TCB{Name: "sooner", DeadlineRem: 3},
	)

	got, ok := (EDF{}).Pick(ids, table)
	require.True(t, ok)
	assert.Equal(t, ids[1], got)
}

func TestPickEmptyReadySetReportsFalse(t *testing.T) {
	table, _ := newTable(t)
	_, ok := (RMA{}).Pick(nil, table)
	assert.False(t, ok)
}

func TestBestEffortWeightedRotation(t *testing.T) {
	table, ids := newTable(t,
		tcb.TCB{Name: "hi", Priority: 10},
		tcb.TCB{Name: "mid", Priority: 5},
		tcb.TCB{Name: "lo", Priority: 1},
	)
	q, err := ring.NewQueue(4)
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, q.PushTail(id))
	}

	counts := map[tcb.ID]int{}
	var be BestEffort
	for i := 0; i < (10+5+1)*3; i++ {
		id, ok := be.Pick(q, table)
		if !ok {
			break
		}
		counts[id]++
	}

	assert.InDelta(t, 10.0/5.0, float64(counts[ids[0]])/float64(counts[ids[1]]), 0.5)
	assert.InDelta(t, 5.0/1.0, float64(counts[ids[1]])/float64(counts[ids[2]]), 1.5)
}

func TestBestEffortDrainedQueueReportsFalse(t *testing.T) {
	table, _ := newTable(t)
	q, err := ring.NewQueue(1)
	require.NoError(t, err)
	_, ok := (BestEffort{}).Pick(q, table)
	assert.False(t, ok)
}

func TestAdmitRMATwoTaskScenario(t *testing.T) {
	// spec.md §8 scenario 1: (C=2,T=10) then (C=3,T=15), util ~= 0.4.
	first := RTParams{Capacity: 2, Period: 10}
	require.True(t, AdmitRMA(nil, first))

	second := RTParams{Capacity: 3, Period: 15}
	assert.True(t, AdmitRMA([]RTParams{first}, second))
}

func TestAdmitEDFThreeTaskScenario(t *testing.T) {
	// spec.md §8 scenario 2: (1,4),(2,6),(3,8), util = 0.958.
	a := RTParams{Capacity: 1, Period: 4}
	b := RTParams{Capacity: 2, Period: 6}
	c := RTParams{Capacity: 3, Period: 8}
	require.True(t, AdmitEDF(nil, a))
	require.True(t, AdmitEDF([]RTParams{a}, b))
	assert.True(t, AdmitEDF([]RTParams{a, b}, c))
}

func TestAdmitRMARejectsFifthTask(t *testing.T) {
	// spec.md §8 scenario 3: four tasks already at util 0.82; a fifth
	// (C=2,T=5) would push the sum to 1.22, well past any n=5 bound.
	existing := []RTParams{
		{Capacity: 41, Period: 200},
		{Capacity: 41, Period: 200},
		{Capacity: 41, Period: 200},
		{Capacity: 41, Period: 200},
	}
	candidate := RTParams{Capacity: 2, Period: 5}
	assert.False(t, AdmitRMA(existing, candidate))
}

func TestAdmitRMABoundDecreasesTowardAsymptote(t *testing.T) {
	assert.Equal(t, int64(10000), rmaBound(1))
	assert.Greater(t, rmaBound(2), rmaBound(8))
	assert.Greater(t, rmaBound(32), int64(rmaAsymptote))
	assert.Equal(t, int64(rmaAsymptote), rmaBound(1000))
}

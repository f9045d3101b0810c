// Package kmetrics implements the Process Control Block counters from
// spec.md §3: cooperative and preemptive context-switch counts,
// interrupts taken, and tick time, plus a bounded-sample tick-latency
// tracker for diagnostics. Modeled on eventloop/metrics.go's
// atomic-counters-plus-guarded-percentiles shape, narrowed from its
// O(1) streaming P-Square quantile estimator to a fixed ring sample: the
// spec has no latency SLA that needs streaming quantiles over an
// unbounded stream, so a bounded sample is simpler and sufficient.
package kmetrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// PCB holds the Process Control Block counters. The zero value is ready
// to use.
type PCB struct {
	cooperativeSwitches atomic.Uint64
	preemptiveSwitches  atomic.Uint64
	interrupts          atomic.Uint64
	tickTime            atomic.Int64 // accumulated, nanoseconds

	latency tickLatency
}

// RecordCooperativeSwitch increments the cooperative context-switch
// counter (spec.md §4.6 Yield).
func (p *PCB) RecordCooperativeSwitch() {
	p.cooperativeSwitches.Add(1)
}

// RecordPreemptiveSwitch increments the preemptive context-switch
// counter (spec.md §4.7 step 7).
func (p *PCB) RecordPreemptiveSwitch() {
	p.preemptiveSwitches.Add(1)
}

// RecordInterrupt increments the interrupts-taken counter and
// accumulates tick_time (spec.md §4.7 step 1).
func (p *PCB) RecordInterrupt(tickDuration time.Duration) {
	p.interrupts.Add(1)
	p.tickTime.Add(int64(tickDuration))
}

// RecordTickLatency records how long one dispatcher tick took to run, for
// the percentile tracker exposed via Snapshot.
func (p *PCB) RecordTickLatency(d time.Duration) {
	p.latency.record(d)
}

// Snapshot is a point-in-time, immutable copy of the PCB counters.
type Snapshot struct {
	CooperativeSwitches uint64
	PreemptiveSwitches  uint64
	Interrupts          uint64
	TickTimeMicros       int64
	TickLatencyP50      time.Duration
	TickLatencyP99      time.Duration
}

// Snapshot returns a copy of the current counter values.
func (p *PCB) Snapshot() Snapshot {
	return Snapshot{
		CooperativeSwitches: p.cooperativeSwitches.Load(),
		PreemptiveSwitches:  p.preemptiveSwitches.Load(),
		Interrupts:          p.interrupts.Load(),
		TickTimeMicros:      p.tickTime.Load() / int64(time.Microsecond),
		TickLatencyP50:      p.latency.percentile(0.50),
		TickLatencyP99:      p.latency.percentile(0.99),
	}
}

// tickLatency is a fixed-size ring of recent tick durations, sorted on
// read to answer percentile queries. Chosen over a streaming quantile
// estimator because the kernel only needs a coarse diagnostic signal,
// not tight bounds on an unbounded stream.
type tickLatency struct {
	mu      sync.Mutex
	samples [256]time.Duration
	count   int
	next    int
}

func (t *tickLatency) record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples[t.next] = d
	t.next = (t.next + 1) % len(t.samples)
	if t.count < len(t.samples) {
		t.count++
	}
}

func (t *tickLatency) percentile(p float64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 {
		return 0
	}
	sorted := make([]time.Duration, t.count)
	copy(sorted, t.samples[:t.count])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

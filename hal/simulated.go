package hal

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kernelcraft/rtkernel/kerrors"
	"github.com/kernelcraft/rtkernel/tcb"
)

// simContext is the goroutine/channel rendezvous standing in for a real
// jump buffer. A task's entire "saved state" at any pause point is simply
// the fact that its goroutine is blocked inside Save (or, before the
// first Restore, blocked at the top of the goroutine launched by
// PrepareStack) — there is nothing else to capture.
type simContext struct {
	id     tcb.ID
	resume chan int  // Restore -> task goroutine: wake with this value
	paused chan bool // task goroutine -> Restore: true = paused via Save, false = entry returned
}

// Simulated is a Backend that runs every task as a real goroutine and
// implements preemption as a cooperative hand-off: a tick only changes
// which task is logically RUNNING at the next point that task calls back
// into the kernel (Yield, DelayMs, a blocking op, or its own completion).
// Go gives library code no portable way to suspend an arbitrary goroutine
// at an arbitrary instruction the way a hardware timer interrupt does, so
// this backend documents and embraces the cooperative restatement rather
// than attempting to fake true asynchronous preemption.
type Simulated struct {
	cpuID int

	tickInterval time.Duration
	ticker       *time.Ticker
	ticks        chan struct{}
	stop         chan struct{}
	closeOnce    sync.Once

	interruptsOff atomic.Bool
}

// NewSimulated constructs a Simulated backend for the given CPU id, with
// a tick firing every tickInterval.
func NewSimulated(cpuID int, tickInterval time.Duration) *Simulated {
	s := &Simulated{
		cpuID:        cpuID,
		tickInterval: tickInterval,
		ticker:       time.NewTicker(tickInterval),
		ticks:        make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
	go s.pump()
	return s
}

// pump forwards ticker firings onto the buffered ticks channel, dropping
// a tick if the dispatcher hasn't drained the previous one yet rather
// than blocking the timer goroutine — a real hardware timer cannot be
// blocked by a slow ISR either, it coalesces or the ISR runs late.
func (s *Simulated) pump() {
	for {
		select {
		case <-s.stop:
			return
		case t := <-s.ticker.C:
			_ = t
			if s.interruptsOff.Load() {
				continue
			}
			select {
			case s.ticks <- struct{}{}:
			default:
			}
		}
	}
}

// PrepareStack implements Backend.
func (s *Simulated) PrepareStack(id tcb.ID, entry func(), size int) (Context, error) {
	if wordSize := bits.UintSize / 8; size <= 0 || size%wordSize != 0 {
		return nil, fmt.Errorf("hal: stack size %d: %w", size, kerrors.ErrOutOfMemory)
	}
	ctx := &simContext{
		id:     id,
		resume: make(chan int),
		paused: make(chan bool),
	}
	go func() {
		v := <-ctx.resume // parked here until the task's first Restore
		func() {
			defer func() {
				recover() // an entry function that panics still counts as terminated
				ctx.paused <- false
			}()
			if v < 0 {
				// A negative resumeValue on the very first Restore means
				// the task was killed before it ever ran: report exited
				// without ever invoking entry (see Restore's doc).
				return
			}
			entry()
		}()
	}()
	return ctx, nil
}

// Restore implements Backend.
func (s *Simulated) Restore(c Context, resumeValue int) (exited bool) {
	ctx := c.(*simContext)
	ctx.resume <- resumeValue
	alive := <-ctx.paused
	return !alive
}

// Save implements Backend.
func (s *Simulated) Save(c Context) (resumeValue int) {
	ctx := c.(*simContext)
	ctx.paused <- true
	return <-ctx.resume
}

// Idle implements Backend.
func (s *Simulated) Idle() {
	<-s.ticks
}

// DisableInterrupts implements Backend.
func (s *Simulated) DisableInterrupts() (enable func()) {
	s.interruptsOff.Store(true)
	var once sync.Once
	return func() {
		once.Do(func() { s.interruptsOff.Store(false) })
	}
}

// CPUID implements Backend.
func (s *Simulated) CPUID() int {
	return s.cpuID
}

// Ticks implements Backend.
func (s *Simulated) Ticks() <-chan struct{} {
	return s.ticks
}

// Close implements Backend.
func (s *Simulated) Close() {
	s.closeOnce.Do(func() {
		s.ticker.Stop()
		close(s.stop)
	})
}

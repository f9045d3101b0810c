//go:build linux

package hal

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// PinToCPU locks the calling goroutine to its current OS thread and
// restricts that thread's affinity to exactly one logical CPU, following
// the same golang.org/x/sys/unix.SchedSetaffinity approach eventloop's
// poller uses for its own low-level Linux syscalls. Each Kernel instance
// calls this once, from the goroutine that will drive its dispatcher, so
// that "each core runs an independent instance" (spec.md §5) is backed
// by a real pinned OS thread rather than just a naming convention.
func PinToCPU(cpu int) error {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("hal: pin to cpu %d: %w", cpu, err)
	}
	return nil
}

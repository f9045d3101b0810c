//go:build !linux

package hal

import "runtime"

// PinToCPU locks the calling goroutine to its current OS thread. True
// per-CPU affinity is Linux-only in this backend (mirroring eventloop's
// own poller_linux.go/poller_darwin.go split — one real mechanism, one
// portable fallback); elsewhere each simulated core still gets its own
// locked OS thread, just not a pinned one.
func PinToCPU(cpu int) error {
	runtime.LockOSThread()
	return nil
}

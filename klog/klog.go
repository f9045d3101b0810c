// Package klog provides the kernel's structured-logging surface: a
// package-level global logger, following the same "package-level
// configuration, swap the backend at init time" design as
// eventloop/logging.go, but backed directly by github.com/rs/zerolog
// rather than a hand-rolled Logger interface — the teacher's own
// logiface-zerolog submodule wraps that exact library, so this module
// imports it directly instead of re-deriving a facade with no second
// backend to justify it.
//
// klog is deliberately never called from the dispatcher's tick path
// (spec.md §7: "the core never logs from inside the dispatcher"); calls
// are confined to boot, spawn, kill, and panic.
package klog

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
)

// Set replaces the global logger. Intended for use at process start (to
// point at a JSON sink in production) or in tests (to capture output).
func Set(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// get returns the current global logger.
func get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Boot logs a kernel bring-up milestone.
func Boot(cpuID int, msg string, fields map[string]any) {
	ev := get().Info().Int("cpu", cpuID)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// Spawn logs a successful task creation.
func Spawn(id int32, name string, period int) {
	get().Info().
		Int32("task_id", id).
		Str("task_name", name).
		Int("period", period).
		Msg("task spawned")
}

// SpawnRefused logs a failed spawn attempt, including the reason.
func SpawnRefused(name string, err error) {
	get().Warn().
		Str("task_name", name).
		Err(err).
		Msg("spawn refused")
}

// Kill logs a task's removal from the scheduler.
func Kill(id int32) {
	get().Info().Int32("task_id", id).Msg("task killed")
}

// Panic logs the fatal diagnostic immediately before the kernel halts.
func Panic(code fmt.Stringer, detail string) {
	get().Error().
		Str("code", code.String()).
		Str("detail", detail).
		Msg("kernel panic")
}

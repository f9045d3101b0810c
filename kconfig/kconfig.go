// Package kconfig holds the kernel's compile-time configuration constants
// (spec.md §6: MAX_TASKS, TIME_SLICE, CPU_SPEED, heap size, float-support
// flag). Defaults are the values that ship; Load is a developer
// convenience for overriding them from a TOML file during bring-up, not a
// retreat from "compile-time constant" — nothing in the dispatcher's hot
// path re-reads a Config after Boot.
package kconfig

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pbnjay/memory"
)

// Config holds the values spec.md §6 calls "configuration constants
// (compile-time)".
type Config struct {
	// MaxTasks bounds the TCB table and every queue's capacity.
	MaxTasks int `toml:"max_tasks"`
	// TimeSlice is the dispatcher tick period (spec's TIME_SLICE).
	TimeSlice time.Duration `toml:"time_slice_us"`
	// CPUSpeedHz is advisory only; nothing in the core computes against
	// it, it exists for diagnostics and for applications that scale
	// their own capacity estimates off it.
	CPUSpeedHz uint64 `toml:"cpu_speed_hz"`
	// HeapSizeBytes models the fixed heap carve-out the real allocator
	// would be handed at boot. Defaulted from host memory when zero.
	HeapSizeBytes uint64 `toml:"heap_size_bytes"`
	// FloatSupport mirrors the source's "is the software floating point
	// library linked in" flag. The core never consults it (all real-time
	// arithmetic is integer, per spec §4.3); it is surfaced for
	// applications that want to know before calling into float-using
	// collaborators outside this module's scope.
	FloatSupport bool `toml:"float_support"`
}

// defaultMaxTasks, defaultTimeSlice, and defaultCPUSpeedHz are the values
// that ship absent an override file.
const (
	defaultMaxTasks   = 32
	defaultTimeSlice  = time.Millisecond
	defaultCPUSpeedHz = 100_000_000
)

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		MaxTasks:      defaultMaxTasks,
		TimeSlice:     defaultTimeSlice,
		CPUSpeedHz:    defaultCPUSpeedHz,
		HeapSizeBytes: memory.TotalMemory() / 64,
		FloatSupport:  false,
	}
}

// Load reads a TOML override file on top of Default, leaving any field
// the file omits at its compiled-in value. A zero HeapSizeBytes in the
// file (or no file at all) still defaults from host memory.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	// A bare integer time_slice_us counts microseconds; a duration string
	// such as "1ms" is taken as written.
	if md.Type("time_slice_us") == "Integer" {
		cfg.TimeSlice *= time.Microsecond
	}
	if cfg.HeapSizeBytes == 0 {
		cfg.HeapSizeBytes = memory.TotalMemory() / 64
	}
	return cfg, nil
}

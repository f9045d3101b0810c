package diag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernelcraft/rtkernel/kerrors"
)

func TestDumpWritesReadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panic.diag")

	err := Dump(path, kerrors.PanicNoRunnableTask, "run queue and RT queue both empty", map[string]int{"current": 3})
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(contents)
	assert.Contains(t, s, "NO_RUNNABLE_TASK")
	assert.Contains(t, s, "run queue and RT queue both empty")
	assert.Contains(t, s, "current")
}

func TestDumpOverwritesExistingFileAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panic.diag")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	err := Dump(path, kerrors.PanicCorruptTCB, "first", nil)
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(contents), "stale")
}

// Package diag writes the fatal-panic diagnostic dump spec.md §7
// requires before the kernel halts ("panic(code) halts with a
// diagnostic"). The dump is written atomically (write-then-rename) so a
// crash mid-write never leaves a half-written file for a post-mortem tool
// to trip over.
package diag

import (
	"fmt"
	"io"
	"time"

	"github.com/google/renameio/v2"
	"github.com/kr/text"

	"github.com/kernelcraft/rtkernel/kerrors"
)

// Dump writes a diagnostic for a fatal panic to path. snapshot is
// rendered with "%+v", indented, so callers can pass whatever TCB/PCB
// state is most useful for a post-mortem without diag needing to know its
// shape.
func Dump(path string, code kerrors.PanicCode, detail string, snapshot any) error {
	t, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("diag: create temp file: %w", err)
	}
	defer t.Cleanup()

	if err := write(t, code, detail, snapshot); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

func write(w io.Writer, code kerrors.PanicCode, detail string, snapshot any) error {
	if _, err := fmt.Fprintf(w, "rtkernel panic: %s\ntime: %s\ndetail: %s\nstate:\n",
		code, time.Now().UTC().Format(time.RFC3339Nano), detail); err != nil {
		return err
	}
	indented := text.NewIndentWriter(w, []byte("  "))
	_, err := fmt.Fprintf(indented, "%+v\n", snapshot)
	return err
}

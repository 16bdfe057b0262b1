//go:build linux

package catalog

import (
	"os"

	"golang.org/x/sys/unix"
)

// Linux: log files are written and replayed strictly front to back.
func fadviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}

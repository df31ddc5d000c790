//go:build linux

package mapped

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// allocate reserves disk blocks for [off, off+n) so that stores into a fresh
// segment cannot fault with SIGBUS on a full filesystem. Filesystems without
// fallocate support fall back to a sparse extend.
func allocate(f *os.File, off, n int64) error {
	err := unix.Fallocate(int(f.Fd()), 0, off, n) //nolint:gosec // G115: fd fits in int
	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
		return f.Truncate(off + n)
	}
	return err
}

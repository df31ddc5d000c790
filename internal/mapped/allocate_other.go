//go:build !linux

package mapped

import "os"

func allocate(f *os.File, off, n int64) error {
	return f.Truncate(off + n)
}

package chronicle

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// writerLock is an exclusive flock on the chronicle's lock file. The kernel
// drops it when the file is closed or the process exits.
type writerLock struct {
	file *os.File
}

func acquireWriterLock(path, instance string, mode os.FileMode) (*writerLock, error) {
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_RDWR, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock: %w", ErrIO, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil { //nolint:gosec // G115: uintptr->int is safe on 64-bit
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			holder, _ := LockHolder(strings.TrimSuffix(path, ".lock"))
			return nil, fmt.Errorf("%w: %s (held by %s)", ErrWriterLocked, path, cmp.Or(holder, "unknown"))
		}
		return nil, fmt.Errorf("%w: lock %s: %w", ErrIO, path, err)
	}

	err = f.Truncate(0)
	if err == nil {
		_, err = f.WriteAt([]byte(instance+"\n"), 0)
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: record lock holder: %w", ErrIO, err)
	}
	return &writerLock{file: f}, nil
}

func (l *writerLock) release() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// LockHolder returns the instance id recorded in the lock file of the
// chronicle at path. The id may be stale when no writer holds the lock.
func LockHolder(path string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path + ".lock"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

//go:build unix

package source

import (
	"os"
	"syscall"
)

// lockShared acquires a shared advisory lock via flock(2), non-blocking.
// A shared lock never excludes other readers; it only detects an
// exclusive lock held by a writer. Returns ErrLocked when one is held.
func lockShared(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB)
	if err != nil {
		if err == syscall.EWOULDBLOCK || err == syscall.EAGAIN {
			return ErrLocked
		}
		return err
	}
	return nil
}

// unlock releases the advisory lock. The lock also drops on close,
// so failures here are ignorable.
func unlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

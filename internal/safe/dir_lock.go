package safe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// LockFileName is the name of the lock file created inside a locked directory.
const LockFileName = ".textshard.lock"

// ErrLocked is returned when another process already holds the lock of a directory.
var ErrLocked = errors.New("directory is locked by another writer")

// DirLock is an advisory, exclusive lock on a directory. It is backed by flock(2) on a lock file
// inside the directory, so the lock is released by the kernel if the holding process dies.
type DirLock struct {
	file *os.File
}

// LockDir takes the exclusive lock of dir without blocking. It returns ErrLocked when the lock is
// held elsewhere. The directory is created if it does not exist yet.
func LockDir(dir string) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, LockFileName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("locking directory: %w", err)
	}

	return &DirLock{file: file}, nil
}

// Unlock releases the lock. The lock file itself is left in place: removing it would race with
// another process that already opened it.
func (l *DirLock) Unlock() error {
	if l.file == nil {
		return ErrAlreadyDone
	}

	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file = nil

	if err != nil {
		return fmt.Errorf("unlocking directory: %w", err)
	}

	return nil
}

package locking

import (
	"os"

	"github.com/pkg/errors"
)

// Locker provides file locking facilities.
type Locker struct {
	// The underlying file object to be locked.
	file *os.File
	// held tracks whether this Locker currently holds the lock, so Held can
	// report status without a platform-specific query.
	held bool
}

// NewLocker attempts to create a lock with the file at the specified path,
// creating the file if necessary. The lock is returned in an unlocked state.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE | os.O_APPEND
	if file, err := os.OpenFile(path, mode, permissions); err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	} else {
		return &Locker{file: file}, nil
	}
}

// Held reports whether this Locker currently holds the lock.
func (l *Locker) Held() bool {
	return l.held
}

// Close closes the underlying lock file. It does not release the lock if
// still held; callers should Unlock first.
func (l *Locker) Close() error {
	return l.file.Close()
}

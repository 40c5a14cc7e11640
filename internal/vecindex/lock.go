package vecindex

import (
	"fmt"

	"github.com/gofrs/flock"
)

// FileLock is the advisory lock serializing index mutations across
// processes. It is keyed on the index path plus a ".lock" suffix so that
// independent façades over the same files contend on the same sentinel.
type FileLock struct {
	fl *flock.Flock
}

// NewFileLock creates the advisory lock for the given index path.
func NewFileLock(indexPath string) *FileLock {
	return &FileLock{fl: flock.New(indexPath + ".lock")}
}

// Path returns the lock sentinel path.
func (l *FileLock) Path() string { return l.fl.Path() }

// Lock acquires the exclusive lock, blocking until available. Every index
// write cycle (read latest file, mutate, write file) happens under it.
func (l *FileLock) Lock() error {
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("vecindex: acquire index lock: %w", err)
	}
	return nil
}

// RLock acquires the shared lock, used by readers during freshness reloads.
func (l *FileLock) RLock() error {
	if err := l.fl.RLock(); err != nil {
		return fmt.Errorf("vecindex: acquire index read lock: %w", err)
	}
	return nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	return l.fl.Unlock()
}

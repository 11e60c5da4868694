// Package lockfile implements scoped acquisition of an exclusive advisory
// lock on a named file, with guaranteed release on every exit path.
//
// This is deliberately simpler than nikolasavic-lokt's internal/lockfile
// + internal/lock packages, which build a distributed lease (TTL,
// staleness detection by dead-PID, reentrant same-owner refresh, an audit
// trail). Those solve "who holds this lock across machines and for how
// long", which a single-host scheduler does not need: this lock only has
// to serialize a read-modify-write between cooperating processes on one
// host for the duration of one function call. We keep lokt's convention
// of one lock file per named resource living under a dedicated locks/
// directory, but acquire with flock(2) (stdlib syscall) rather than
// lokt's create-exclusive-plus-JSON-body protocol, since nothing here
// needs the lock file to carry an owner/PID/TTL payload.
package lockfile

import (
	"fmt"
	"os"
	"syscall"
)

// Locker guards read-modify-write access to one named file.
type Locker struct {
	path string
}

// New returns a Locker for the advisory lock at path. The file is created
// on first acquisition if it does not already exist.
func New(path string) *Locker {
	return &Locker{path: path}
}

// WithLock acquires an exclusive lock on the underlying file, invokes fn,
// and releases the lock on every exit path — including a panic inside fn,
// which is allowed to propagate after the lock is released.
//
// Re-entrant acquisition from the same process on the same lock is not
// supported: a second WithLock call on the same Locker from a goroutine
// already holding the lock will block forever.
func (l *Locker) WithLock(fn func() error) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", l.path, err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	return fn()
}

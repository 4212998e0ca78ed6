// Package lockfile provides scoped advisory file locks.
package lockfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock is a held advisory lock. Release it with Unlock, normally via defer.
type Lock struct {
	f *os.File
}

// Acquire opens (creating if needed) path and takes an exclusive flock on it,
// blocking until it is available.
func Acquire(path string) (*Lock, error) {
	return acquire(path, unix.LOCK_EX)
}

// TryAcquire is Acquire without blocking. It returns ok=false when another
// holder has the lock.
func TryAcquire(path string) (*Lock, bool, error) {
	l, err := acquire(path, unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return l, true, nil
}

// AcquireDir takes an exclusive flock on an existing directory.
func AcquireDir(dir string) (*Lock, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("opening lock %s: %w", dir, err)
	}
	return lock(f, dir, unix.LOCK_EX)
}

func acquire(path string, how int) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock %s: %w", path, err)
	}
	return lock(f, path, how)
}

func lock(f *os.File, path string, how int) (*Lock, error) {
	var err error
	for {
		err = unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, err
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// File returns the underlying lock file, for callers that store content in it.
func (l *Lock) File() *os.File {
	return l.f
}

// Unlock releases the lock. It is safe to call more than once.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return f.Close()
}

// With runs fn while holding the lock at path.
func With(path string, fn func() error) error {
	l, err := Acquire(path)
	if err != nil {
		return err
	}
	defer func() { _ = l.Unlock() }()
	return fn()
}

// Package lock keeps two armsd services from running against the same data
// directory.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrHeld matches any HeldError.
var ErrHeld = errors.New("lock held by another process")

// HeldError reports who holds the lock, when the file says so.
type HeldError struct {
	Path  string
	Owner Owner
}

func (e *HeldError) Error() string {
	if e.Owner.PID == 0 {
		return fmt.Sprintf("%s: %v", e.Path, ErrHeld)
	}
	return fmt.Sprintf("%s: %v (pid %d since %s)", e.Path, ErrHeld, e.Owner.PID, e.Owner.Since.Format(time.RFC3339))
}

func (e *HeldError) Is(target error) bool { return target == ErrHeld }

// Owner is the record written into the lock file.
type Owner struct {
	PID   int       `json:"pid"`
	Since time.Time `json:"since"`
}

// Status describes a lock file as seen by a non-holder.
type Status struct {
	Held  bool
	Owner Owner
}

// PIDLock is an exclusive flock(2) held for as long as the file stays open.
type PIDLock struct {
	path string
	f    *os.File
}

// Acquire takes the lock at path without blocking. When another process
// holds it the error is a *HeldError.
func Acquire(path string) (*PIDLock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if ok, err := tryFlock(f); err != nil || !ok {
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		owner, _ := readOwner(path)
		return nil, &HeldError{Path: path, Owner: owner}
	}

	l := &PIDLock{path: path, f: f}
	if err := l.record(Owner{PID: os.Getpid(), Since: time.Now().UTC()}); err != nil {
		_ = l.Release()
		return nil, err
	}
	return l, nil
}

func (l *PIDLock) record(o Owner) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := l.f.WriteAt(append(data, '\n'), 0); err != nil {
		return fmt.Errorf("write lock owner: %w", err)
	}
	return l.f.Sync()
}

// Inspect reports whether the lock at path is held and by whom. A missing
// file is simply not held.
func Inspect(path string) (Status, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close()

	free, err := tryFlock(f)
	if err != nil {
		return Status{}, fmt.Errorf("probe lock: %w", err)
	}
	if free {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return Status{}, nil
	}
	owner, err := readOwner(path)
	return Status{Held: true, Owner: owner}, err
}

func (l *PIDLock) Path() string { return l.path }

// Release drops the lock. The file stays behind with the stale owner.
func (l *PIDLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}

// tryFlock reports false, nil when someone else holds the lock.
func tryFlock(f *os.File) (bool, error) {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return false, nil
	}
	return err == nil, err
}

func readOwner(path string) (Owner, error) {
	var o Owner
	data, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return Owner{}, fmt.Errorf("parse lock owner in %s: %w", path, err)
	}
	return o, nil
}

// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// lockExtension is appended to the guarded resource path to form the lock
// file name.
const lockExtension = ".LOCK"

// AlreadyLockedError reports that a resource is locked by another holder,
// identified by the process id found in the existing lock file.
type AlreadyLockedError struct {
	Path  string
	Owner int
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("file %s already locked by process %d", e.Path, e.Owner)
}

// IsAlreadyLocked reports whether an error indicates a lock conflict, so
// callers can implement deliberate retry or backoff. Locking never blocks or
// queues.
func IsAlreadyLocked(err error) bool {
	var target *AlreadyLockedError
	return errors.As(err, &target)
}

// Lock is a process-exclusive advisory lock on a filesystem path,
// materialized as a sibling <path>.LOCK file holding the owning process id.
// It must be released exactly once; Release is idempotent so it can safely
// be deferred on every exit path.
type Lock struct {
	path     string
	pid      int
	released bool
}

// AcquireLock exclusively creates <path>.LOCK. It fails fast with an
// AlreadyLockedError if the lock file already exists; it never waits.
func AcquireLock(path string) (*Lock, error) {
	lockPath := path + lockExtension
	if dir := filepath.Dir(lockPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, readLockOwner(lockPath)
		}
		return nil, err
	}
	lock := &Lock{path: path, pid: os.Getpid()}
	_, err = fmt.Fprintf(file, "%d", lock.pid)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(lockPath)
		return nil, err
	}
	return lock, nil
}

// readLockOwner parses the process id out of an existing lock file to build
// the conflict error.
func readLockOwner(lockPath string) error {
	content, err := os.ReadFile(lockPath)
	if err != nil {
		return err
	}
	owner, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return fmt.Errorf("unable to parse owner pid of lock file %s: %w", lockPath, err)
	}
	return &AlreadyLockedError{Path: lockPath, Owner: owner}
}

// Path returns the guarded resource path (not the lock file path).
func (l *Lock) Path() string {
	return l.path
}

// Release deletes the lock file. Releasing an already released lock is a
// no-op.
func (l *Lock) Release() error {
	if l.released {
		return nil
	}
	l.released = true
	return os.Remove(l.path + lockExtension)
}

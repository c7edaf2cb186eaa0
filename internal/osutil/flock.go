// Copyright (c) 2014-2020 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package osutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Locked is returned by Acquire when the lock is held by someone else and
// no on-failure callback was supplied. When a callback declines to retry,
// Acquire returns the callback's own error instead.
type Locked struct {
	Path string
}

func (e *Locked) Error() string {
	return fmt.Sprintf("lock held: %s", e.Path)
}

// LockHandle is an acquired advisory file lock. The zero value is not
// valid; handles are created by Acquire.
type LockHandle struct {
	fd   int
	Path string
}

// Acquire takes a non-blocking exclusive advisory lock on path, creating it
// if necessary. If the lock is already held, onFail is called with path; a
// nil return means "retry the acquire", anything else propagates as the
// error from Acquire. A nil onFail means "don't retry, return Locked".
//
// The returned handle's descriptor is inheritable by spawned children by
// default; callers that don't want that (every lock the engine itself
// takes) must call SetInheritable(false) explicitly.
func Acquire(path string, onFail func(path string) error) (*LockHandle, error) {
	for {
		fd, err := openForLock(path)
		if err != nil {
			return nil, err
		}

		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &LockHandle{fd: fd, Path: path}, nil
		}
		unix.Close(fd)

		if err != unix.EWOULDBLOCK {
			return nil, err
		}
		if onFail == nil {
			return nil, &Locked{Path: path}
		}
		if err := onFail(path); err != nil {
			return nil, err
		}
		// onFail returned nil: retry the acquire.
	}
}

func openForLock(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o666)
	if err == unix.EISDIR {
		// Directories can't be opened O_RDWR, but can still be flock'd.
		fd, err = unix.Open(path, unix.O_RDONLY, 0)
	}
	return fd, err
}

// Release closes the lock's descriptor, releasing the advisory lock.
func (h *LockHandle) Release() error {
	return unix.Close(h.fd)
}

// Fd returns the lock's raw file descriptor, e.g. to pass to a spawned
// supervisor via ExtraFiles so it inherits the lock's lifetime.
func (h *LockHandle) Fd() int {
	return h.fd
}

// SetInheritable controls whether this descriptor survives an exec() in a
// child process. pgctl's own per-invocation locks are marked
// non-inheritable so that short-lived probes (sv, svstat) spawned during a
// transition never hold them; a service's background() supervisor, by
// contrast, is spawned with its scratch-dir lock left inheritable so Fuser
// can later find it holding that descriptor.
func (h *LockHandle) SetInheritable(inheritable bool) error {
	if inheritable {
		return unix.IoctlSetInt(h.fd, unix.FIONCLEX, 0)
	}
	return unix.IoctlSetInt(h.fd, unix.FIOCLEX, 0)
}

// WithLock acquires path, runs fn, and releases the lock on every exit path
// -- the scoped form of Acquire/Release.
func WithLock(path string, onFail func(path string) error, fn func(h *LockHandle) error) error {
	h, err := Acquire(path, onFail)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h)
}

// Copyright (c) 2014-2024 Canonical Ltd
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
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// Have a lock so that if one goroutine tries to Mkdir /foo/bar, and
// another tries to Mkdir /foo/baz, they can't both decide they need
// to make /foo and then have one fail.
var mu sync.Mutex

// MkdirOptions is a struct of options used for Mkdir().
type MkdirOptions struct {
	// If false (default), a missing parent raises an error.
	// If true, any missing parents of this path are created as needed.
	MakeParents bool

	// If false (default), an error is raised if the target directory already exists.
	// In case MakeParents is true but ExistOK is false, an error won't be raised if
	// the parent directory already exists but the target directory doesn't.
	//
	// If true, an error won't be raised unless the given path already exists in the
	// file system and isn't a directory (same behaviour as the POSIX mkdir -p command).
	ExistOK bool

	// If false (default), no explicit chmod is performed. In this case, the permission
	// of the created directories will be affected by umask settings.
	//
	// If true, perform an explicit chmod on any directories created.
	Chmod bool
}

// Mkdir creates directories; depending on MkdirOptions.MakeParents, it is like os.Mkdir
// or os.MkdirAll. You can set the option MkdirOptions.Chmod to perform an explicit
// chmod on directories it creates so that the permissions won't be affected by umask
// settings.
//
// Playground scratch directories are created this way so that a service's
// FIFOs and lock files always land with predictable permissions regardless
// of the caller's umask.
func Mkdir(path string, perm os.FileMode, options *MkdirOptions) error {
	mu.Lock()
	defer mu.Unlock()

	path = filepath.Clean(path)

	if s, err := os.Stat(path); err == nil {
		if !s.IsDir() {
			return &os.PathError{Op: "mkdir", Path: path, Err: syscall.ENOTDIR}
		}
		if options != nil && options.ExistOK {
			return nil
		}
		return &os.PathError{Op: "mkdir", Path: path, Err: syscall.EEXIST}
	}

	return mkdirAll(path, perm, options)
}

func mkdirAll(path string, perm os.FileMode, options *MkdirOptions) error {
	if s, err := os.Stat(path); err == nil {
		if s.IsDir() {
			return nil
		}
		return &os.PathError{Op: "mkdir", Path: path, Err: syscall.ENOTDIR}
	}

	if options != nil && options.MakeParents {
		parent := filepath.Dir(path)
		if parent != "/" && parent != "." {
			if err := mkdirAll(parent, perm, options); err != nil {
				return err
			}
		}
	}

	return mkdir(path, perm, options)
}

func mkdir(path string, perm os.FileMode, options *MkdirOptions) error {
	cand := path + ".mkdir-new"

	if err := os.Mkdir(cand, perm); err != nil && !os.IsExist(err) {
		return err
	}

	if err := os.Rename(cand, path); err != nil {
		return err
	}

	if options != nil && options.Chmod {
		if err := os.Chmod(path, perm); err != nil {
			return err
		}
	}

	fd, err := os.Open(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer fd.Close()

	return fd.Sync()
}

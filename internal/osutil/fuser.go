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
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/pgctl/pgctl/internal/reaper"
)

// Fuser returns the pids (owned by the current user) that hold an open
// file descriptor to path, by scanning /proc/<pid>/fd. If allowDeleted is
// true, a descriptor whose link target is "path (deleted)" also counts --
// this catches a process still holding a lock file that has since been
// removed and recreated. Races (a /proc entry disappearing between listing
// and stat) are tolerated by silently skipping the entry.
func Fuser(path string, allowDeleted bool) ([]int, error) {
	target, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	targetStat, ok := target.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, nil
	}

	deletedTarget := path + " (deleted)"
	currentUID := uint32(os.Getuid())

	procEntries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, procEntry := range procEntries {
		pid, err := strconv.Atoi(procEntry.Name())
		if err != nil {
			continue // not a pid directory
		}

		if !ownedByUID(pid, currentUID) {
			continue
		}

		fdDir := filepath.Join("/proc", procEntry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue // gone, or no permission: skip
		}

		for _, fd := range fds {
			fdPath := filepath.Join(fdDir, fd.Name())

			if allowDeleted {
				if link, err := os.Readlink(fdPath); err == nil && link == deletedTarget {
					pids = append(pids, pid)
					break
				}
			}

			st, err := os.Stat(fdPath)
			if err != nil {
				continue // vanished between listing and stat: skip
			}
			fdStat, ok := st.Sys().(*syscall.Stat_t)
			if !ok {
				continue
			}
			if fdStat.Ino == targetStat.Ino && fdStat.Dev == targetStat.Dev {
				pids = append(pids, pid)
				break
			}
		}
	}

	sort.Ints(pids)
	return pids, nil
}

func ownedByUID(pid int, uid uint32) bool {
	st, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid)))
	if err != nil {
		return false
	}
	sysStat, ok := st.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return sysStat.Uid == uid
}

// ProcessTree shells out to `ps --forest -wwfj` for the given pids, giving
// a human-readable printout for lock-contention diagnostics. Returns an
// empty string if pids is empty or ps only produced its header line (a
// race between Fuser finding pids and ps still being able to see them).
func ProcessTree(pids []int) string {
	if len(pids) == 0 {
		return ""
	}
	args := make([]string, 0, len(pids)+3)
	args = append(args, "--forest", "-wwfj")
	for _, pid := range pids {
		args = append(args, strconv.Itoa(pid))
	}

	out, _ := runPs(args)
	if strings.Count(out, "\n") > 1 {
		return out
	}
	return ""
}

func runPs(args []string) (string, error) {
	cmd := exec.Command("ps", args...)
	out, err := reaper.CommandCombinedOutput(cmd)
	return string(out), err
}

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

package readiness

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DownEventFIFOName returns the unique-per-process FIFO name the daemon
// with the given pid listens on, so two rapid restarts of the same service
// never collide on the same path (§4.5 point 5, §9's design note).
func DownEventFIFOName(pid int) string {
	return fmt.Sprintf("down-%d", pid)
}

// CreateDownEventFIFO creates the named pipe a supervisor writes a single
// 'd' byte to when tearing the service down. It must be created before the
// daemon forks, so a fast-exiting run command still produces a signal the
// daemon can observe.
func CreateDownEventFIFO(path string) error {
	return unix.Mkfifo(path, 0o600)
}

// WatchDownEventFIFO opens path read-write (so the open call itself never
// blocks waiting for a writer, per §5) and returns a channel that receives
// once a 'd' byte is read. The returned close func removes the FIFO.
func WatchDownEventFIFO(path string) (<-chan struct{}, func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan struct{}, 1)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := f.Read(buf)
			if err != nil {
				return
			}
			if n > 0 && buf[0] == 'd' {
				select {
				case ch <- struct{}{}:
				default:
				}
				return
			}
		}
	}()

	closeFn := func() {
		f.Close()
		os.Remove(path)
	}
	return ch, closeFn, nil
}

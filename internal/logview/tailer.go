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

// Package logview implements the live log frame that start, stop and
// restart show while they wait: a multiplexed tail -F of every requested
// service's log file, rendered as a bordered frame on an interactive
// terminal. It has no plain-output mode; when UseLiveViewer reports false
// no frame is shown. The "pgctl log" command does not use this package.
package logview

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"regexp"

	"golang.org/x/sys/unix"

	"github.com/pgctl/pgctl/internal/reaper"
)

// ansiEscapes strips 7-bit C1 ANSI sequences from log output before it's
// re-framed inside our own box-drawing escapes, so a colorized service log
// doesn't corrupt the viewer's borders.
var ansiEscapes = regexp.MustCompile("\x1b(?:[@-Z\\\\-_]|\\[[0-?]*[ -/]*[@-~])")

// StripANSI removes C1 ANSI escape sequences from s.
func StripANSI(s string) string {
	return ansiEscapes.ReplaceAllString(s, "")
}

// TailEvent is a batch of newly available lines read from one tailed path.
type TailEvent struct {
	Path     string
	LogLines []string
}

// Tailer multiplexes "tail -F" over a set of paths using a single poll(2)
// loop, mirroring log_viewer.py's Tailer class: each tailed path gets its
// own "tail -F" child whose stdout is put in non-blocking mode and
// registered with poll, so get_logs never blocks waiting on one slow or
// silent service.
type Tailer struct {
	pathToCmd  map[string]*exec.Cmd
	pathToFile map[string]*os.File
	fdToPath   map[int]string
	pollFDs    []unix.PollFd
}

// NewTailer starts "tail -F <path>" for each path and begins polling their
// stdout for output.
func NewTailer(paths []string) (*Tailer, error) {
	t := &Tailer{
		pathToCmd:  make(map[string]*exec.Cmd),
		pathToFile: make(map[string]*os.File),
		fdToPath:   make(map[int]string),
	}

	for _, path := range paths {
		cmd := exec.Command("tail", "-F", path)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			t.Cleanup()
			return nil, fmt.Errorf("logview: tail -F %s: %w", path, err)
		}
		cmd.Stderr = nil

		osFile, ok := stdout.(*os.File)
		if !ok {
			t.Cleanup()
			return nil, fmt.Errorf("logview: tail -F %s: stdout pipe is not a file", path)
		}

		if err := reaper.StartCommand(cmd); err != nil {
			t.Cleanup()
			return nil, fmt.Errorf("logview: tail -F %s: %w", path, err)
		}

		fd := int(osFile.Fd())
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Cleanup()
			return nil, fmt.Errorf("logview: setting nonblock on %s: %w", path, err)
		}

		t.pathToCmd[path] = cmd
		t.pathToFile[path] = osFile
		t.fdToPath[fd] = path
		t.pollFDs = append(t.pollFDs, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}

	return t, nil
}

// GetLogs polls for timeoutMS milliseconds (0 for an immediate, non-blocking
// check) and returns every batch of lines that became available on any
// tailed path.
func (t *Tailer) GetLogs(timeoutMS int) ([]TailEvent, error) {
	n, err := unix.Poll(t.pollFDs, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("logview: poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	var events []TailEvent
	for _, pfd := range t.pollFDs {
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP) == 0 {
			continue
		}
		path := t.fdToPath[int(pfd.Fd)]
		content := t.drainFD(int(pfd.Fd))
		if len(content) == 0 {
			continue
		}
		events = append(events, TailEvent{Path: path, LogLines: splitLines(content)})
	}
	return events, nil
}

// NewLinesAvailable reports whether a zero-timeout poll sees any readable
// fd, letting the caller decide whether a redraw is due without consuming
// the data (log_viewer.py's new_lines_available).
func (t *Tailer) NewLinesAvailable() bool {
	n, err := unix.Poll(t.pollFDs, 0)
	return err == nil && n > 0
}

func (t *Tailer) drainFD(fd int) []byte {
	var buf bytes.Buffer
	chunk := make([]byte, 10000)
	for {
		n, err := unix.Read(fd, chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil || n <= 0 {
			break
		}
		if n < len(chunk) {
			break
		}
	}
	return buf.Bytes()
}

func splitLines(content []byte) []string {
	var lines []string
	for _, line := range bytes.Split(bytes.TrimRight(content, "\n"), []byte("\n")) {
		lines = append(lines, string(line))
	}
	return lines
}

// StopTailing terminates and reaps the "tail -F" child for path.
func (t *Tailer) StopTailing(path string) error {
	cmd, ok := t.pathToCmd[path]
	if !ok {
		return nil
	}
	t.removePoll(path)
	delete(t.pathToCmd, path)
	if f, ok := t.pathToFile[path]; ok {
		f.Close()
		delete(t.pathToFile, path)
	}

	if cmd.Process != nil {
		cmd.Process.Signal(unix.SIGTERM)
	}
	_, err := reaper.WaitCommand(cmd)
	return err
}

func (t *Tailer) removePoll(path string) {
	var fd int
	for candidate, p := range t.fdToPath {
		if p == path {
			fd = candidate
			break
		}
	}
	delete(t.fdToPath, fd)

	kept := t.pollFDs[:0]
	for _, pfd := range t.pollFDs {
		if int(pfd.Fd) != fd {
			kept = append(kept, pfd)
		}
	}
	t.pollFDs = kept
}

// Cleanup stops tailing every remaining path.
func (t *Tailer) Cleanup() {
	for path := range t.pathToCmd {
		t.StopTailing(path)
	}
}

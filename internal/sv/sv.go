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

// Package sv adapts the daemontools/s6 process-supervision family: it
// issues control verbs against a supervised service directory and parses
// the textual status line that family of tools reports. pgctl's own logic
// never execs "svc"/"svstat" directly -- it only ever sees the Status
// record and the Control/Stat functions in this package.
package sv

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pgctl/pgctl/internal/logger"
	"github.com/pgctl/pgctl/internal/reaper"
)

// ErrUnsupervised is returned by Control when the supervisor for a service
// is gone. It's not a fatal error -- callers re-assert the desired state on
// the next polling tick instead of failing immediately.
var ErrUnsupervised = errors.New("could not get status, supervisor is down")

// State is the coarse status daemontools/s6 reports for a service.
type State int

const (
	StateUnknown State = iota
	StateUp
	StateReady
	StateDown
	StateUnsupervised
	StateInvalid
)

func (st State) String() string {
	switch st {
	case StateUp:
		return "up"
	case StateReady:
		return "ready"
	case StateDown:
		return "down"
	case StateUnsupervised:
		return "unsupervised"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Process describes whether a service is mid-transition.
type Process int

const (
	ProcessNone Process = iota
	ProcessStarting
	ProcessStopping
)

// Status is the parsed record produced by Stat.
type Status struct {
	State       State
	UnknownText string // raw text, set only when State == StateUnknown
	Pid         *int
	ExitCode    *int
	Seconds     *int
	Process     Process
}

func (s Status) String() string {
	out := s.State.String()
	if s.State == StateUnknown {
		out = s.UnknownText
	}
	if s.Pid != nil {
		out += fmt.Sprintf(" (pid %d)", *s.Pid)
	}
	if s.ExitCode != nil {
		out += fmt.Sprintf(" (exitcode %d)", *s.ExitCode)
	}
	if s.Seconds != nil {
		out += fmt.Sprintf(" %d seconds", *s.Seconds)
	}
	switch s.Process {
	case ProcessStarting:
		out += ", starting"
	case ProcessStopping:
		out += ", stopping"
	}
	return out
}

// Control issues a verb (e.g. "-u" for up, "-dx" for down-and-unsupervise)
// against the service at path.
func Control(path string, verb string) error {
	cmd := exec.Command("s6-svc", verb, path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := reaper.StartCommand(cmd); err != nil {
		return err
	}
	exitCode, err := reaper.WaitCommand(cmd)
	if err != nil {
		return err
	}

	if strings.HasPrefix(stderr.String(), "s6-svc: fatal: unable to control ") {
		return ErrUnsupervised
	}
	if exitCode != 0 {
		return fmt.Errorf("s6-svc %s %s: exit status %d: %s", verb, path, exitCode, stderr.String())
	}
	return nil
}

// Stat asks whether the supervisor for path is alive, and if so reads and
// parses its status line.
func Stat(path string) (Status, error) {
	okCmd := exec.Command("s6-svok", path)
	if err := reaper.StartCommand(okCmd); err != nil {
		return Status{}, err
	}
	exitCode, err := reaper.WaitCommand(okCmd)
	if err != nil {
		return Status{}, err
	}
	if exitCode != 0 {
		return Status{State: StateUnsupervised}, nil
	}

	statCmd := exec.Command("s6-svstat", path)
	out, err := reaper.CommandCombinedOutput(statCmd)
	if err != nil {
		logger.Debugf("s6-svstat %s failed: %v", path, err)
	}
	return Parse(string(out))
}

// Parse decodes one status line in the grammar daemontools/s6 use, e.g.
//
//	up (pid 1202562) 100 seconds, ready 10 seconds
//	down 4334 seconds, normally up, want up
//	up (pid 1202) 1 seconds, want down
//
// A stray trailing NUL byte (seen in the wild after "want up") is
// tolerated. An unrecognized "want" value is a parse error; everything else
// that doesn't match a known form becomes StateUnknown with the raw text
// preserved.
func Parse(raw string) (Status, error) {
	status := strings.TrimSpace(strings.ReplaceAll(raw, "\x00", ""))

	state, rest := splitState(status)
	if state == StateUnsupervised || state == StateInvalid || state == StateUnknown {
		return Status{State: state, UnknownText: rest}, nil
	}

	result := Status{State: state}

	if strings.HasPrefix(rest, "(pid ") {
		pidStr, remainder, ok := cutLastParen(rest[len("(pid "):])
		if !ok {
			return Status{}, fmt.Errorf("sv: cannot parse pid from %q", raw)
		}
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			return Status{}, fmt.Errorf("sv: cannot parse pid from %q: %w", raw, err)
		}
		result.Pid = &pid
		rest = remainder
	}

	if strings.HasPrefix(rest, "(exitcode ") {
		codeStr, remainder, ok := cutLastParen(rest[len("(exitcode "):])
		if !ok {
			return Status{}, fmt.Errorf("sv: cannot parse exitcode from %q", raw)
		}
		code, err := strconv.Atoi(codeStr)
		if err != nil {
			return Status{}, fmt.Errorf("sv: cannot parse exitcode from %q: %w", raw, err)
		}
		result.ExitCode = &code
		rest = remainder
	}

	if secs, remainder, ok := cutSeconds(rest); ok {
		result.Seconds = &secs
		rest = remainder
	}

	switch {
	case strings.Contains(rest, ", want up"):
		result.Process = ProcessStarting
	case strings.Contains(rest, ", want down"):
		result.Process = ProcessStopping
	case strings.Contains(rest, ", want "):
		return Status{}, fmt.Errorf("sv: unexpected want value in %q", raw)
	}

	if strings.HasPrefix(rest, ", ready ") {
		result.State = StateReady
		result.Process = ProcessNone
		if secs, _, ok := cutSeconds(rest[len(", ready "):]); ok {
			result.Seconds = &secs
		} else {
			return Status{}, fmt.Errorf("sv: cannot parse ready seconds from %q", raw)
		}
	}

	return result, nil
}

func splitState(status string) (State, string) {
	first, rest, _ := strings.Cut(status, " ")
	switch first {
	case "up":
		return StateUp, rest
	case "down":
		return StateDown, rest
	}

	if strings.HasPrefix(status, "unable to chdir:") {
		return StateInvalid, ""
	}
	if strings.HasPrefix(status, "s6-svstat: fatal: unable to read status for ") &&
		(strings.HasSuffix(status, ": No such file or directory") || strings.HasSuffix(status, ": Broken pipe")) {
		return StateUnsupervised, ""
	}

	return StateUnknown, status
}

// cutLastParen splits "N) rest..." on the last ") " the way Python's
// rsplit(') ', 1) does, returning the text before it and the remainder.
func cutLastParen(s string) (before, after string, ok bool) {
	idx := strings.LastIndex(s, ") ")
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+2:], true
}

func cutSeconds(s string) (seconds int, rest string, ok bool) {
	before, after, found := strings.Cut(s, " seconds")
	if !found {
		return 0, s, false
	}
	n, err := strconv.Atoi(before)
	if err != nil {
		return 0, s, false
	}
	return n, after, true
}

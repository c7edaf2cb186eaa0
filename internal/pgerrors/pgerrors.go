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

// Package pgerrors holds the user-level error taxonomy for pgctl: errors
// that are expected during normal operation and should reach the user as a
// single line, not a stack trace.
package pgerrors

import "fmt"

// UserError is implemented by every error in this package, so the CLI
// boundary can distinguish "the user needs to see this" from a programmer
// error that should propagate with its stack trace.
type UserError interface {
	error
	userError()
}

// IsUserError reports whether err is one of this package's user-level
// errors (as opposed to a fatal/programmer error).
func IsUserError(err error) bool {
	_, ok := err.(UserError)
	return ok
}

// NoPlayground means the configured playground directory could not be
// located by searching from the current directory upward.
type NoPlayground struct {
	Name string
}

func (e *NoPlayground) Error() string {
	return fmt.Sprintf("could not find any directory named '%s'", e.Name)
}

func (e *NoPlayground) userError() {}

// NoSuchService means a named service has no directory under the
// playground.
type NoSuchService struct {
	Name string
}

func (e *NoSuchService) Error() string {
	return fmt.Sprintf("no such service: '%s'", e.Name)
}

func (e *NoSuchService) userError() {}

// CircularAliases means the alias graph being expanded is not a DAG: the
// same name was visited twice during one name's expansion.
type CircularAliases struct {
	Name string
}

func (e *CircularAliases) Error() string {
	return fmt.Sprintf("Circular aliases! Visited twice during alias expansion: '%s'", e.Name)
}

func (e *CircularAliases) userError() {}

// LockHeld means a transition could not proceed because another pgctl
// invocation (or an escaped process) holds the per-service lock. Detail, if
// set, is the diagnostic text produced by the lock's on-failure callback
// (typically a fuser + ps report). Runaway distinguishes the two distinct
// situations this error reports: contention on the per-invocation
// ".pgctl.lock" by another pgctl command (Runaway false), versus orphaned
// processes still holding the supervisor's own lock after a stop (Runaway
// true) -- §8 scenario 4's "these runaway processes did not stop".
type LockHeld struct {
	Path    string
	Detail  string
	Runaway bool
}

func (e *LockHeld) Error() string {
	if e.Runaway {
		msg := "these runaway processes did not stop"
		if e.Detail == "" {
			return msg
		}
		return fmt.Sprintf(
			"%s:\n%s\nThis usually means these processes are buggy.\nLearn more: https://pgctl.readthedocs.org/en/latest/user/quickstart.html#writing-playground-services",
			msg, e.Detail,
		)
	}
	if e.Detail == "" {
		return fmt.Sprintf("another pgctl command is currently managing this service: (%s)", e.Path)
	}
	return fmt.Sprintf("another pgctl command is currently managing this service: (%s)\n%s", e.Path, e.Detail)
}

func (e *LockHeld) userError() {}

// NotReady means the assertion for the target state failed. This is
// expected during a polling loop and only becomes fatal once the deadline
// passes.
type NotReady struct {
	Service string
	Status  string
}

func (e *NotReady) Error() string {
	return fmt.Sprintf("service '%s' is not ready: %s", e.Service, e.Status)
}

func (e *NotReady) userError() {}

// Unsupervised means the control channel reports that the supervisor for a
// service is gone. It is swallowed inside the polling loop (§4.7): the next
// assertion cycle decides the real outcome.
type Unsupervised struct {
	Service string
}

func (e *Unsupervised) Error() string {
	return fmt.Sprintf("%s: could not get status, supervisor is down", e.Service)
}

func (e *Unsupervised) userError() {}

// Timeout is synthesized from a NotReady crossing a service's deadline. It
// carries the actual elapsed time and how long the last assertion itself
// took, so the message can note unusually slow polling separately from the
// configured timeout.
type Timeout struct {
	Service          string
	Action           string // e.g. "start", "stop"
	ActualElapsed    float64
	ConfiguredLimit  float64
	LastCheckElapsed float64
	Cause            error
}

func (e *Timeout) Error() string {
	msg := fmt.Sprintf("ERROR: service '%s' failed to %s after %.2f seconds", e.Service, e.Action, e.ActualElapsed)
	if e.ActualElapsed-e.ConfiguredLimit > 0.1 {
		msg += fmt.Sprintf(" (it took %.2fs to poll)", e.LastCheckElapsed)
	}
	if e.Cause != nil {
		msg += ", " + e.Cause.Error()
	}
	return msg
}

func (e *Timeout) userError() {}

// NotImplemented is raised for a StateChange variant that forbids an
// operation (e.g. force-cleanup of a Start or StopLogs) and for the
// "reload" command, which pgctl does not support.
type NotImplemented struct {
	What string
}

func (e *NotImplemented) Error() string {
	return e.What + " is not yet implemented."
}

func (e *NotImplemented) userError() {}

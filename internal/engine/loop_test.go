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

package engine_test

import (
	"bytes"
	"errors"
	"time"

	. "gopkg.in/check.v1"

	"github.com/pgctl/pgctl/internal/engine"
	"github.com/pgctl/pgctl/internal/pgerrors"
)

type loopSuite struct{}

var _ = Suite(&loopSuite{})

// fakeTarget is a changeTarget double: Assert() pops from a pre-scripted
// list of errors (nil meaning "success"), so tests can script the exact
// sequence of polling outcomes without a live sv/s6 stack.
type fakeTarget struct {
	name         string
	assertErrs   []error
	assertCalls  int
	changeErr    error
	changeCalls  int
	timeout      float64
	failMsg      string
	failErr      error
	failCalls    int
	messageCalls int
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) Change() error {
	f.changeCalls++
	return f.changeErr
}

func (f *fakeTarget) Assert() error {
	idx := f.assertCalls
	f.assertCalls++
	if idx >= len(f.assertErrs) {
		return f.assertErrs[len(f.assertErrs)-1]
	}
	return f.assertErrs[idx]
}

func (f *fakeTarget) Timeout() float64 { return f.timeout }

func (f *fakeTarget) Fail() (string, error) {
	f.failCalls++
	return f.failMsg, f.failErr
}

func (f *fakeTarget) Action() string      { return "start" }
func (f *fakeTarget) ChangedLine() string { return "Started:" }
func (f *fakeTarget) RunMessageHook() error {
	f.messageCalls++
	return nil
}

func newEngine() (*engine.Engine, *bytes.Buffer) {
	e := engine.New("/tmp/does-not-matter/playground", nil)
	var buf bytes.Buffer
	e.Out = &buf
	// The real clock with sleeps that return at once; tests that need the
	// loop to observe elapsed time install steppingClock via SetClock.
	e.SetClock(time.Now, func(time.Duration) {})
	return e, &buf
}

// steppingClock returns a clock that advances by one second on every call,
// so each check in the polling loop lands a full tick after the previous one.
func steppingClock() func() time.Time {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func (s *loopSuite) TestSucceedsImmediately(c *C) {
	e, out := newEngine()
	t := &fakeTarget{name: "redis", assertErrs: []error{nil}, timeout: 10}

	failed := e.RunLoop([]engine.ChangeTarget{t})

	c.Assert(failed, IsNil)
	c.Assert(t.changeCalls, Equals, 1)
	c.Assert(t.messageCalls, Equals, 1)
	c.Assert(out.String(), Equals, "[pgctl] Started: redis\n")
}

func (s *loopSuite) TestRechecksUntilReady(c *C) {
	e, _ := newEngine()
	notReady := &pgerrors.NotReady{Service: "redis", Status: "down"}
	t := &fakeTarget{
		name:       "redis",
		assertErrs: []error{notReady, notReady, nil},
		timeout:    1000, // deadline is far away; every failure rechecks.
	}

	failed := e.RunLoop([]engine.ChangeTarget{t})

	c.Assert(failed, IsNil)
	c.Assert(t.assertCalls, Equals, 3)
}

func (s *loopSuite) TestUnsupervisedChangeErrorIsSwallowed(c *C) {
	e, out := newEngine()
	t := &fakeTarget{
		name:       "redis",
		assertErrs: []error{nil},
		changeErr:  &pgerrors.Unsupervised{Service: "redis"},
		timeout:    10,
	}

	failed := e.RunLoop([]engine.ChangeTarget{t})

	c.Assert(failed, IsNil)
	// Unsupervised from Change() must not itself be logged as an error.
	c.Assert(out.String(), Not(Matches), "(?s).*could not get status.*")
}

func (s *loopSuite) TestTimesOutAndFailsWhenForceDisabled(c *C) {
	e, out := newEngine()
	e.NoForce = true

	// With timeout 0 the deadline is startTime itself; each clock read is one
	// second later, so at the first failed check "now" is 2s past the
	// deadline and the extrapolated next tick 3s past it: time out now.
	e.SetClock(steppingClock(), func(time.Duration) {})

	notReady := &pgerrors.NotReady{Service: "slow", Status: "down"}
	t := &fakeTarget{name: "slow", assertErrs: []error{notReady}, timeout: 0}

	failed := e.RunLoop([]engine.ChangeTarget{t})

	c.Assert(failed, DeepEquals, []string{"slow"})
	c.Assert(t.failCalls, Equals, 0) // NoForce means Fail() is never tried
	c.Assert(out.String(), Matches, "(?s).*failed to start after.*")
}

func (s *loopSuite) TestForceCleanupRechecksInsteadOfFailingImmediately(c *C) {
	e, _ := newEngine()
	e.SetClock(steppingClock(), func(time.Duration) {})

	notReady := &pgerrors.NotReady{Service: "slow", Status: "down"}
	t := &fakeTarget{
		name:       "slow",
		assertErrs: []error{notReady, nil},
		timeout:    0,
		failMsg:    "WARNING: Killing these runaway processes which did not stop:\nPID CMD\n123 sleep 300",
	}

	failed := e.RunLoop([]engine.ChangeTarget{t})

	c.Assert(failed, IsNil)
	c.Assert(t.failCalls, Equals, 1)
	c.Assert(t.assertCalls, Equals, 2)
}

func (s *loopSuite) TestForceCleanupForbiddenFallsThroughToFailure(c *C) {
	e, _ := newEngine()
	e.SetClock(steppingClock(), func(time.Duration) {})

	notReady := &pgerrors.NotReady{Service: "web", Status: "down"}
	t := &fakeTarget{
		name:       "web",
		assertErrs: []error{notReady},
		timeout:    0,
		failErr:    &pgerrors.NotImplemented{What: "force-cleanup of this transition"},
	}

	failed := e.RunLoop([]engine.ChangeTarget{t})

	c.Assert(failed, DeepEquals, []string{"web"})
	c.Assert(t.failCalls, Equals, 1)
}

func (s *loopSuite) TestMultipleTargetsAllChangeBeforeAnyAssert(c *C) {
	e, _ := newEngine()

	var order []string
	a := &fakeTargetOrdered{name: "a", order: &order, assertOK: true}
	b := &fakeTargetOrdered{name: "b", order: &order, assertOK: true}

	e.RunLoop([]engine.ChangeTarget{a, b})

	// both changes must precede both asserts within the same tick.
	c.Assert(order, DeepEquals, []string{"change:a", "change:b", "assert:a", "assert:b"})
}

// fakeTargetOrdered records the order Change()/Assert() are invoked in, to
// verify §5's "within one tick, all change() calls happen before any
// assert() calls" ordering guarantee.
type fakeTargetOrdered struct {
	name     string
	order    *[]string
	assertOK bool
}

func (f *fakeTargetOrdered) Name() string { return f.name }
func (f *fakeTargetOrdered) Change() error {
	*f.order = append(*f.order, "change:"+f.name)
	return nil
}
func (f *fakeTargetOrdered) Assert() error {
	*f.order = append(*f.order, "assert:"+f.name)
	if f.assertOK {
		return nil
	}
	return errors.New("not ready")
}
func (f *fakeTargetOrdered) Timeout() float64       { return 10 }
func (f *fakeTargetOrdered) Fail() (string, error)  { return "", nil }
func (f *fakeTargetOrdered) Action() string         { return "start" }
func (f *fakeTargetOrdered) ChangedLine() string    { return "Started:" }
func (f *fakeTargetOrdered) RunMessageHook() error  { return nil }

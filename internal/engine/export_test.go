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

package engine

import (
	"time"

	"github.com/pgctl/pgctl/internal/osutil"
	"github.com/pgctl/pgctl/internal/service"
)

// ShouldTimeout exposes the "closest tick to deadline" predicate for
// direct testing of its tie-break formula.
var ShouldTimeout = shouldTimeout

// ChangeTarget is the interface the polling loop drives; exported so
// tests can exercise RunLoop against fakes instead of real services.
type ChangeTarget = changeTarget

// RunLoop exposes the polling loop directly.
func (e *Engine) RunLoop(targets []ChangeTarget) []string {
	return e.runLoop(targets)
}

// SetClock overrides the engine's notion of time, so the polling loop can
// be driven deterministically in tests.
func (e *Engine) SetClock(now func() time.Time, sleep func(time.Duration)) {
	e.nowFunc = now
	e.sleepFunc = sleep
}

// LockAll and ReleaseAll expose the locking helpers for direct testing.
func (e *Engine) LockAll(services []*service.Service) ([]*osutil.LockHandle, error) {
	return e.lockAll(services)
}

func (e *Engine) ReleaseAll(locks []*osutil.LockHandle) {
	e.releaseAll(locks)
}

// RunHook exposes the playground-wide hook runner.
func (e *Engine) RunHook(name string) error {
	return e.runHook(name)
}

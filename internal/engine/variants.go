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
	"strings"

	"github.com/pgctl/pgctl/internal/service"
)

// variantSpec describes one of the three state-change variants (§4.7):
// the verb to apply, the assertion predicate, the timeout accessor, the
// force-cleanup action, whether it's user-facing, and its display
// strings. Exactly one of these backs every change a caller makes.
type variantSpec struct {
	Action string // "start" or "stop" -- used in error/hook text

	UserFacing bool

	ChangingLine string // e.g. "Starting:" -- printed before the loop starts
	ChangedLine  string // e.g. "Started:"  -- printed per-service on success
	ChangingWord string // e.g. "starting"  -- used in the log viewer's "Still X" line

	isStop bool // only Stop permits force-cleanup

	change func(*service.Service) error
	assert func(*service.Service) error
	timeout func(*service.Service) float64
}

var (
	variantStart = variantSpec{
		Action:       "start",
		UserFacing:   true,
		ChangingLine: "Starting:",
		ChangedLine:  "Started:",
		ChangingWord: "starting",
		isStop:       false,
		change:       (*service.Service).Start,
		assert:       (*service.Service).AssertReady,
		timeout:      (*service.Service).TimeoutReady,
	}

	variantStop = variantSpec{
		Action:       "stop",
		UserFacing:   true,
		ChangingLine: "Stopping:",
		ChangedLine:  "Stopped:",
		ChangingWord: "stopping",
		isStop:       true,
		change:       (*service.Service).Stop,
		assert:       func(s *service.Service) error { return s.AssertStopped(true) },
		timeout:      (*service.Service).TimeoutStop,
	}

	variantStopLogs = variantSpec{
		Action:       "stop",
		UserFacing:   false,
		ChangingLine: "Stopping logger for:",
		ChangedLine:  "Stopped logger for:",
		ChangingWord: "stopping logger for",
		isStop:       false,
		change:       (*service.Service).StopLogs,
		assert:       func(s *service.Service) error { return s.AssertStopped(false) },
		timeout:      (*service.Service).TimeoutStop,
	}
)

// boundChange pairs one service with one variant; it implements
// changeTarget so the polling loop can drive it without knowing about
// Service or sv at all.
type boundChange struct {
	svc     *service.Service
	variant variantSpec
}

func bind(variant variantSpec, services []*service.Service) []changeTarget {
	targets := make([]changeTarget, len(services))
	for i, s := range services {
		targets[i] = &boundChange{svc: s, variant: variant}
	}
	return targets
}

func (b *boundChange) Name() string          { return b.svc.Name() }
func (b *boundChange) Change() error         { return b.variant.change(b.svc) }
func (b *boundChange) Assert() error         { return b.variant.assert(b.svc) }
func (b *boundChange) Timeout() float64      { return b.variant.timeout(b.svc) }
func (b *boundChange) Action() string        { return b.variant.Action }
func (b *boundChange) ChangedLine() string   { return b.variant.ChangedLine }
func (b *boundChange) RunMessageHook() error { _, err := b.svc.Message(b.variant.Action); return err }

// Fail runs force-cleanup for this service/variant pair; only Stop allows
// it, matching service.ForceCleanup's isStop-gated NotImplemented.
func (b *boundChange) Fail() (string, error) {
	return b.svc.ForceCleanup(b.variant.isStop)
}

// alreadyLine is the fast-path message printed when every target's
// assertion already holds, e.g. "Already started: redis, memcache".
func (v variantSpec) alreadyLine() string {
	return "Already " + strings.ToLower(strings.TrimSuffix(v.ChangedLine, ":")) + ":"
}

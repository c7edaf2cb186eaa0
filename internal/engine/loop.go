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
	"errors"
	"fmt"
	"time"

	"github.com/pgctl/pgctl/internal/pgerrors"
)

// changeTarget is one service paired with one StateChange variant -- what
// the polling loop needs to drive it to completion. *boundChange (see
// variants.go) is the real implementation backed by a *service.Service;
// tests drive the loop against a fake so its timeout/recheck/force-cleanup
// logic can be verified without a live sv/s6 stack.
type changeTarget interface {
	Name() string
	Change() error
	Assert() error
	Timeout() float64
	Fail() (string, error)
	Action() string        // "start" or "stop", for error/progress text
	ChangedLine() string   // e.g. "Started:" -- printed on success
	RunMessageHook() error // runs "<verb>-msg" if present
}

// runLoop implements §4.7's polling loop: every tick, issue change() on
// every still-pending target (swallowing Unsupervised -- the assertion
// below decides the real outcome), then assert() each; a target is
// removed from the working set on success or unrecoverable failure. It
// returns the names of every target that failed.
func (e *Engine) runLoop(targets []changeTarget) []string {
	pending := append([]changeTarget(nil), targets...)
	var failed []string

	startTime := e.now()
	for len(pending) > 0 {
		for _, t := range pending {
			if err := t.Change(); err != nil {
				var unsupervised *pgerrors.Unsupervised
				if !errors.As(err, &unsupervised) {
					e.logf("%s: %v", t.Name(), err)
				}
			}
		}

		var stillPending []changeTarget
		for _, t := range pending {
			checkTime := e.now()
			err := t.Assert()
			if err == nil {
				e.onSuccess(t)
				continue
			}

			if e.retryAfterFailure(t, err, startTime, checkTime) {
				stillPending = append(stillPending, t)
			} else {
				failed = append(failed, t.Name())
			}
		}
		pending = stillPending

		if len(pending) > 0 {
			e.redrawLogViewer(pending)
			e.sleep(e.PollInterval)
		}
	}

	return failed
}

// redrawLogViewer draws one frame of the live log viewer, if one is
// attached, titled with the names still pending this transition (§4.7:
// "if log_viewer: redraw once, showing 'Still <changing> <remaining>'").
// Per §9's single-write contract, the frame is written in one Fprint call.
func (e *Engine) redrawLogViewer(pending []changeTarget) {
	if e.LogViewer == nil || !e.LogViewer.RedrawNeeded() {
		return
	}

	names := make([]string, len(pending))
	for i, t := range pending {
		names[i] = t.Name()
	}
	title := fmt.Sprintf("%s Still %s %s", channel, e.currentWord, commafy(names))

	frame, err := e.LogViewer.DrawLogs(title)
	if err != nil {
		return
	}
	if e.Out != nil {
		fmt.Fprint(e.Out, e.LogViewer.MoveCursorToTop(), e.LogViewer.ClearBelow(), frame)
	}
}

func (e *Engine) onSuccess(t changeTarget) {
	e.printLine(fmt.Sprintf("%s %s", t.ChangedLine(), t.Name()))
	if err := t.RunMessageHook(); err != nil {
		e.logf("%s: message hook failed: %v", t.Name(), err)
	}
}

// retryAfterFailure implements __locked_handle_state_change_exception:
// only once the tick nearest the deadline arrives does a NotReady become
// terminal. Past that point, if forcing is enabled and t.Fail succeeds, t
// is rechecked again on every tick rather than failed; it fails only when
// forcing is disabled or t.Fail returns an error. Returns true if t should
// remain in the working set.
func (e *Engine) retryAfterFailure(t changeTarget, assertErr error, startTime, checkTime time.Time) bool {
	now := e.now()
	if !shouldTimeout(startTime, checkTime, now, t.Timeout()) {
		return true
	}

	if !e.NoForce {
		if msg, err := t.Fail(); err == nil {
			if msg != "" {
				e.printLine(fmt.Sprintf("%s: %s", t.Name(), msg))
			}
			return true
		}
		// NotImplemented (this variant forbids forcing): fall through to
		// the timeout failure below.
	}

	actual := now.Sub(startTime).Seconds()
	msg := fmt.Sprintf("ERROR: service '%s' failed to %s after %.2f seconds", t.Name(), t.Action(), actual)
	if actual-t.Timeout() > 0.1 {
		msg += fmt.Sprintf(" (it took %.2fs to poll)", now.Sub(checkTime).Seconds())
	}
	msg += ", " + assertErr.Error()
	e.printLine(msg)
	return false
}

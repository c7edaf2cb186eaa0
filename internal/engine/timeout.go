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

import "time"

// shouldTimeout is the polling loop's "closest tick to deadline" predicate,
// factored out as a pure function per cli.py's timeout(): it returns true
// iff the current tick is strictly closer to the deadline than the next
// expected tick would be, so the loop aborts at the poll nearest the
// deadline instead of always overshooting by one interval. On a tie
// (including a check that took no time at all) it returns false.
//
// deadline = startTime + timeoutSeconds. next is extrapolated as
// now + (now - checkTime), i.e. assuming the next check takes as long as
// this one did.
func shouldTimeout(startTime, checkTime, now time.Time, timeoutSeconds float64) bool {
	deadline := startTime.Add(time.Duration(timeoutSeconds * float64(time.Second)))
	next := now.Add(now.Sub(checkTime))
	return absDuration(now.Sub(deadline)) < absDuration(next.Sub(deadline))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

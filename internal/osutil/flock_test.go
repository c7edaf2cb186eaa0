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

package osutil_test

import (
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/pgctl/pgctl/internal/osutil"
)

type flockSuite struct{}

var _ = Suite(&flockSuite{})

func (s *flockSuite) TestAcquireCreatesMissingFile(c *C) {
	path := filepath.Join(c.MkDir(), "lock")
	h, err := osutil.Acquire(path, nil)
	c.Assert(err, IsNil)
	defer h.Release()

	c.Assert(osutil.CanStat(path), Equals, true)
}

func (s *flockSuite) TestSecondAcquireFromSameProcessFails(c *C) {
	path := filepath.Join(c.MkDir(), "lock")
	h, err := osutil.Acquire(path, nil)
	c.Assert(err, IsNil)
	defer h.Release()

	_, err = osutil.Acquire(path, nil)
	c.Assert(err, FitsTypeOf, &osutil.Locked{})
}

func (s *flockSuite) TestOnFailCanDeclineAndPropagate(c *C) {
	path := filepath.Join(c.MkDir(), "lock")
	h, err := osutil.Acquire(path, nil)
	c.Assert(err, IsNil)
	defer h.Release()

	calls := 0
	_, err = osutil.Acquire(path, func(p string) error {
		calls++
		c.Assert(p, Equals, path)
		return &osutil.Locked{Path: p}
	})
	c.Assert(calls, Equals, 1)
	c.Assert(err, FitsTypeOf, &osutil.Locked{})
}

func (s *flockSuite) TestReleaseAllowsReacquire(c *C) {
	path := filepath.Join(c.MkDir(), "lock")
	h, err := osutil.Acquire(path, nil)
	c.Assert(err, IsNil)
	c.Assert(h.Release(), IsNil)

	h2, err := osutil.Acquire(path, nil)
	c.Assert(err, IsNil)
	defer h2.Release()
}

func (s *flockSuite) TestWithLockReleasesOnReturn(c *C) {
	path := filepath.Join(c.MkDir(), "lock")
	var ranInside bool
	err := osutil.WithLock(path, nil, func(h *osutil.LockHandle) error {
		ranInside = true
		return nil
	})
	c.Assert(err, IsNil)
	c.Assert(ranInside, Equals, true)

	// Lock must be free again now.
	h, err := osutil.Acquire(path, nil)
	c.Assert(err, IsNil)
	h.Release()
}

func (s *flockSuite) TestSetInheritableRoundTrips(c *C) {
	path := filepath.Join(c.MkDir(), "lock")
	h, err := osutil.Acquire(path, nil)
	c.Assert(err, IsNil)
	defer h.Release()

	c.Assert(h.SetInheritable(false), IsNil)
	c.Assert(h.SetInheritable(true), IsNil)
}

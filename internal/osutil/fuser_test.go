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
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/pgctl/pgctl/internal/osutil"
)

type fuserSuite struct{}

var _ = Suite(&fuserSuite{})

func (s *fuserSuite) TestFuserFindsCurrentProcess(c *C) {
	path := filepath.Join(c.MkDir(), "held")
	f, err := os.Create(path)
	c.Assert(err, IsNil)
	defer f.Close()

	pids, err := osutil.Fuser(path, false)
	c.Assert(err, IsNil)
	c.Assert(pids, Not(HasLen), 0)

	found := false
	for _, pid := range pids {
		if pid == os.Getpid() {
			found = true
		}
	}
	c.Assert(found, Equals, true)
}

func (s *fuserSuite) TestFuserEmptyForUnheldFile(c *C) {
	path := filepath.Join(c.MkDir(), "unheld")
	c.Assert(os.WriteFile(path, nil, 0o644), IsNil)

	pids, err := osutil.Fuser(path, false)
	c.Assert(err, IsNil)
	for _, pid := range pids {
		c.Assert(pid, Not(Equals), os.Getpid())
	}
}

func (s *fuserSuite) TestFuserMissingPathErrors(c *C) {
	_, err := osutil.Fuser(filepath.Join(c.MkDir(), "nope"), false)
	c.Assert(err, NotNil)
}

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

package logview_test

import (
	"os"
	"strings"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/pgctl/pgctl/internal/logview"
)

func Test(t *testing.T) { TestingT(t) }

type logviewSuite struct{}

var _ = Suite(&logviewSuite{})

func (s *logviewSuite) TestStripANSIRemovesColorCodes(c *C) {
	in := "\x1b[31mred text\x1b[0m plain"
	c.Assert(logview.StripANSI(in), Equals, "red text plain")
}

func (s *logviewSuite) TestStripANSILeavesPlainTextUntouched(c *C) {
	c.Assert(logview.StripANSI("nothing to see here"), Equals, "nothing to see here")
}

func (s *logviewSuite) TestPadOrTruncatePads(c *C) {
	c.Assert(logview.PadOrTruncate("hi", 5), Equals, "hi   ")
}

func (s *logviewSuite) TestPadOrTruncateTruncates(c *C) {
	c.Assert(logview.PadOrTruncate("hello world", 5), Equals, "hello")
}

func (s *logviewSuite) TestDrawnBoxHasCorrectBorderWidthAndRowCount(c *C) {
	box := logview.DrawnBox(10, 4, []string{"abc"})

	// Disable-wrap, hide-cursor, re-enable-wrap and show-cursor escapes
	// bracket the frame per the frame construction order.
	c.Assert(strings.HasPrefix(box, "\x1b[?7l\x1b[?25l"), Equals, true)
	c.Assert(strings.HasSuffix(box, "\x1b[?7h\x1b[?25h"), Equals, true)

	// Inner width is width-2; top border is 8 '═' runes between corners.
	c.Assert(strings.Contains(box, "╔"+strings.Repeat("═", 8)+"╗"), Equals, true)
	c.Assert(strings.Contains(box, "╚"+strings.Repeat("═", 8)+"╝"), Equals, true)

	// height=4 means 2 inner content rows.
	c.Assert(strings.Count(box, "║"), Equals, 4)
}

func (s *logviewSuite) TestDrawnBoxClampsNegativeInnerDimensions(c *C) {
	// width/height smaller than the border itself must not panic or
	// produce a negative-length repeat.
	box := logview.DrawnBox(1, 1, nil)
	c.Assert(box, Not(Equals), "")
}

func (s *logviewSuite) TestUseLiveViewerRespectsForceEnable(c *C) {
	devNull, err := os.Open(os.DevNull)
	c.Assert(err, IsNil)
	defer devNull.Close()

	c.Assert(logview.UseLiveViewer(int(devNull.Fd()), true), Equals, true)
}

func (s *logviewSuite) TestUseLiveViewerFalseOnNonTerminalWithoutForce(c *C) {
	devNull, err := os.Open(os.DevNull)
	c.Assert(err, IsNil)
	defer devNull.Close()

	c.Assert(logview.UseLiveViewer(int(devNull.Fd()), false), Equals, false)
}

func (s *logviewSuite) TestUseLiveViewerFalseInCI(c *C) {
	old, had := os.LookupEnv("CI")
	os.Setenv("CI", "true")
	defer func() {
		if had {
			os.Setenv("CI", old)
		} else {
			os.Unsetenv("CI")
		}
	}()

	devNull, err := os.Open(os.DevNull)
	c.Assert(err, IsNil)
	defer devNull.Close()

	c.Assert(logview.UseLiveViewer(int(devNull.Fd()), false), Equals, false)
}

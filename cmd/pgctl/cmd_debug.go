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

package main

import (
	"fmt"
	"strings"
)

const cmdDebugSummary = "Run a single service in the foreground"
const cmdDebugDescription = `
The debug command stops the named service if it isn't already down, runs
the playground's pre-start hook, then execs the service's run script
directly in the foreground with PGCTL_DEBUG=true. It never returns.
`

type cmdDebug struct {
	cmdBase
}

func (cmd *cmdDebug) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}

	a, err := cmd.newApp()
	if err != nil {
		return err
	}

	names := cmd.Positional.Services
	if cmd.All || len(names) == 0 {
		names = []string{"default"}
	}

	svcs, err := a.services(names)
	if err != nil {
		return err
	}
	if len(svcs) != 1 {
		return fmt.Errorf("must debug exactly one service, not: %s", strings.Join(names, ", "))
	}

	return a.newEngine().Debug(svcs[0])
}

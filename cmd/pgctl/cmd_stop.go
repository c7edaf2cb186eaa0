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

const cmdStopSummary = "Idempotently stop a service or group of services"
const cmdStopDescription = `
The stop command brings down the named services (or the default alias if
none are given), force-killing any runaway process once the graceful
timeout elapses unless --no-force is given.
`

type cmdStop struct {
	cmdBase
}

func (cmd *cmdStop) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}

	a, err := cmd.newApp()
	if err != nil {
		return err
	}

	svcs, err := a.services(cmd.serviceNames())
	if err != nil {
		return err
	}

	e := a.newEngine()
	cleanup := a.attachLogViewer(e, svcs)
	defer cleanup()

	failed, err := e.Stop(svcs, false)
	if err != nil {
		return err
	}
	return a.showFailure("stop", failed)
}

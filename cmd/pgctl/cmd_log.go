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
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/term"
)

const cmdLogSummary = "Display the log for a service or group of services"
const cmdLogDescription = `
The log command shows the last 30 lines of each named service's log file,
following it continuously ("tail -F") when stdout is a terminal.
`

type cmdLog struct {
	cmdBase
}

func (cmd *cmdLog) Execute(args []string) error {
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

	tailArgs := []string{"tail", "-n", "30", "--verbose"}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		tailArgs = append(tailArgs, "--follow=name", "--retry")
	}
	for _, s := range svcs {
		if err := s.EnsureLogs(); err != nil {
			return err
		}
		tailArgs = append(tailArgs, relOrAbs(s.LogfilePath()))
	}

	return execTail(tailArgs)
}

// execTail replaces the current process with "tail ..." the way cli.py's
// log() command does with exec_(); never returns on success.
func execTail(args []string) error {
	path, err := exec.LookPath(args[0])
	if err != nil {
		return err
	}
	return syscall.Exec(path, args, os.Environ())
}

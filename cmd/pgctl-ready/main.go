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

// Command pgctl-ready is the readiness sidecar's own entry point (§4.5,
// §6's readiness contract). A service's "run" script execs this wrapper as
// "pgctl-ready <real-run> [args...]"; it in turn either disables itself
// (PGCTL_DEBUG) or forks the heartbeat daemon before exec-ing into the
// real run script, so the process s6 supervises keeps the service's own
// pid. Invoked as "pgctl-ready -daemon <fifo>" it instead runs the daemon
// loop itself -- this is readiness.Wrap re-entering itself as its own
// sibling process, not a user-facing mode.
package main

import (
	"fmt"
	"os"

	"github.com/pgctl/pgctl/internal/readiness"
)

func main() {
	if len(os.Args) >= 3 && os.Args[1] == "-daemon" {
		if err := readiness.RunDaemon(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "pgctl-ready: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: pgctl-ready <command> [args...]")
		os.Exit(2)
	}

	if err := readiness.Wrap(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pgctl-ready: %v\n", err)
		os.Exit(1)
	}
}

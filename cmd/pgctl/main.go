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

// Command pgctl is the CLI surface described in spec.md §6: start, stop,
// restart, status, reload, log, debug, and config, each built on top of
// the state-change engine in internal/engine.
package main

import (
	"fmt"
	"os"

	"github.com/canonical/go-flags"

	"github.com/pgctl/pgctl/internal/logger"
	"github.com/pgctl/pgctl/internal/reaper"
)

func main() {
	logger.SetLogger(logger.New(os.Stderr, "[pgctl] "))

	if err := reaper.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "[pgctl] ERROR: %v\n", err)
		os.Exit(1)
	}
	defer reaper.Stop()

	os.Exit(run())
}

// run parses argv and executes the matched command, returning the process
// exit code per §6: 0 on success, 1 on a user-level failure (with a
// "[pgctl] ERROR: ..." line already written to stderr), 2 for a CLI usage
// error.
func run() int {
	parser := newParser()

	_, err := parser.Parse()
	if err == nil {
		return 0
	}

	if flagsErr, ok := err.(*flags.Error); ok {
		switch flagsErr.Type {
		case flags.ErrHelp:
			parser.WriteHelp(os.Stdout)
			return 0
		case flags.ErrCommandRequired:
			parser.WriteHelp(os.Stdout)
			return 2
		default:
			fmt.Fprintln(os.Stderr, flagsErr.Message)
			return 2
		}
	}

	fmt.Fprintf(os.Stderr, "[pgctl] ERROR: %v\n", err)
	return 1
}

// printProgress writes one "[pgctl] ..." line to stderr, for commands that
// need to emit progress text outside the engine (e.g. reload).
func printProgress(msg string) {
	fmt.Fprintf(os.Stderr, "[pgctl] %s\n", msg)
}

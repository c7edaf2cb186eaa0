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

	"github.com/canonical/go-flags"
)

// ErrExtraArgs is returned by a command whose go-flags Commander gets more
// positional arguments than it expects once positional-args parsing is
// done (mirrors pebble's own main.go).
var ErrExtraArgs = fmt.Errorf("too many arguments for command")

// newParser builds a fresh go-flags parser with every pgctl subcommand
// registered (§6's CLI surface: start, stop, status, restart, reload, log,
// debug, config). A fresh parser per invocation avoids cross-test command
// state, matching cli.go's Parser() doc comment.
func newParser() *flags.Parser {
	var noOptions struct{}
	parser := flags.NewParser(&noOptions, flags.Default)
	parser.ShortDescription = "Manage a local playground of developer services"
	parser.LongDescription = "pgctl starts, stops, and observes a directory of long-running developer services as a coherent group."

	mustAdd(parser, "start", cmdStartSummary, cmdStartDescription, &cmdStart{})
	mustAdd(parser, "stop", cmdStopSummary, cmdStopDescription, &cmdStop{})
	mustAdd(parser, "restart", cmdRestartSummary, cmdRestartDescription, &cmdRestart{})
	mustAdd(parser, "status", cmdStatusSummary, cmdStatusDescription, &cmdStatus{})
	mustAdd(parser, "reload", cmdReloadSummary, cmdReloadDescription, &cmdReload{})
	mustAdd(parser, "log", cmdLogSummary, cmdLogDescription, &cmdLog{})
	mustAdd(parser, "debug", cmdDebugSummary, cmdDebugDescription, &cmdDebug{})
	mustAdd(parser, "config", cmdConfigSummary, cmdConfigDescription, &cmdConfig{})

	return parser
}

func mustAdd(parser *flags.Parser, name, summary, description string, obj flags.Commander) {
	if _, err := parser.AddCommand(name, summary, description, obj); err != nil {
		panic(fmt.Sprintf("pgctl: cannot add command %q: %v", name, err))
	}
}

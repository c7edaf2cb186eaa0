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
	"strings"

	"github.com/pgctl/pgctl/internal/pgerrors"
)

const cmdReloadSummary = "Reload the configuration for a service (not implemented)"
const cmdReloadDescription = `
pgctl has no notion of a live-reloadable service definition; this command
always reports the "not yet implemented" user message §6 and §7 require.
`

type cmdReload struct {
	cmdBase
}

func (cmd *cmdReload) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}
	printProgress("reload: " + strings.Join(cmd.serviceNames(), ", "))
	return &pgerrors.NotImplemented{What: "reloading"}
}

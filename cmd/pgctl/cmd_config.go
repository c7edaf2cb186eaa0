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
	"encoding/json"
	"os"
)

const cmdConfigSummary = "Print the fully-resolved configuration"
const cmdConfigDescription = `
The config command prints the layered configuration this invocation
resolved (§6: CLI flag > environment variable > config file > built-in
default), as JSON.
`

type cmdConfig struct {
	cmdBase
}

func (cmd *cmdConfig) Execute(args []string) error {
	if len(args) > 0 {
		return ErrExtraArgs
	}

	a, err := cmd.newApp()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	return enc.Encode(struct {
		Pgdir      string              `json:"pgdir"`
		Pghome     string              `json:"pghome"`
		Timeout    float64             `json:"timeout"`
		Poll       float64             `json:"poll"`
		NoForce    bool                `json:"no_force"`
		Verbose    bool                `json:"verbose"`
		Aliases    map[string][]string `json:"aliases"`
		Playground string              `json:"playground"`
	}{
		Pgdir:      a.opts.Pgdir,
		Pghome:     a.opts.Pghome,
		Timeout:    a.opts.Timeout,
		Poll:       a.opts.Poll,
		NoForce:    a.opts.NoForce,
		Verbose:    a.opts.Verbose,
		Aliases:    a.opts.Aliases,
		Playground: a.playgroundDir,
	})
}

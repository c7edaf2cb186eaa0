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
	"github.com/pgctl/pgctl/internal/config"
)

// cmdBase holds the flags common to every subcommand (§6's "common
// flags"), embedded by value in each command struct the way cmd_*.go in
// the host project embeds a shared mixin.
type cmdBase struct {
	Pgdir   string `long:"pgdir" description:"Name of the playground directory"`
	Pghome  string `long:"pghome" description:"Directory holding scratch state for supervised services"`
	NoForce bool   `long:"no-force" description:"Do not force-kill runaway processes on a failed stop"`
	Verbose bool   `long:"verbose" description:"Show extra state-change output"`
	All     bool   `short:"a" long:"all" description:"Act on every service in the playground"`

	Positional struct {
		Services []string `positional-arg-name:"<service>" description:"Service or alias name"`
	} `positional-args:"yes"`
}

// serviceNames returns the positional service/alias arguments, defaulting
// to "(all services)" when --all is given and falling back to the
// "default" alias (matching PGCTL_DEFAULTS' services=('default',)) when
// neither is given.
func (c *cmdBase) serviceNames() []string {
	if c.All {
		return []string{config.AllServices}
	}
	if len(c.Positional.Services) > 0 {
		return c.Positional.Services
	}
	return []string{"default"}
}

// options builds the config.Options this command's flags override; zero
// values are left unset so config.Resolve's CLI>env>file>default
// precedence still applies.
func (c *cmdBase) options() config.Options {
	return config.Options{
		Pgdir:   c.Pgdir,
		Pghome:  c.Pghome,
		NoForce: c.NoForce,
		Verbose: c.Verbose,
	}
}

// newApp resolves this command's app against its own flags.
func (c *cmdBase) newApp() (*app, error) {
	return newApp(c.options())
}

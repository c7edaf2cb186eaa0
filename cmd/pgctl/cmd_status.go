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
	"fmt"
	"os"
	"sort"

	"golang.org/x/term"

	"github.com/pgctl/pgctl/internal/engine"
)

const cmdStatusSummary = "Show the pid and state of a service or group of services"
const cmdStatusDescription = `
The status command reports each service's {ready,up,down} state, along
with its pid, exit code, seconds in that state, and whether it's starting
or stopping.
`

const (
	styleBold   = "\x1b[1m"
	styleReset  = "\x1b[0m"
	styleGreen  = "\x1b[92m"
	styleRed    = "\x1b[91m"
	styleYellow = "\x1b[93m"
)

type cmdStatus struct {
	cmdBase

	JSON bool `long:"json" description:"Print status as JSON instead of a human-readable summary"`
}

func (cmd *cmdStatus) Execute(args []string) error {
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
	statuses, err := e.Status(svcs)
	if err != nil {
		return err
	}

	if cmd.JSON {
		return printStatusJSON(statuses)
	}
	printStatusText(statuses)
	return nil
}

func printStatusJSON(statuses []engine.ServiceStatus) error {
	out := make(map[string]map[string]any, len(statuses))
	for _, st := range statuses {
		entry := map[string]any{
			"state":    st.State,
			"pid":      st.Pid,
			"exitcode": st.ExitCode,
			"seconds":  st.Seconds,
			"process":  nullableString(st.Process),
		}
		out[st.Name] = entry
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	return enc.Encode(out)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func printStatusText(statuses []engine.ServiceStatus) {
	sorted := append([]engine.ServiceStatus(nil), statuses...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	tty := term.IsTerminal(int(os.Stdout.Fd()))

	for _, st := range sorted {
		color := styleYellow
		switch st.State {
		case "ready":
			color = styleGreen
		case "down":
			color = styleRed
		}

		fmt.Printf(" %s %s: %s\n",
			wrap("●", color, tty),
			wrap(st.Name, styleBold, tty),
			wrap(st.State, styleBold+color, tty),
		)

		var components []string
		if st.Pid != nil {
			components = append(components, fmt.Sprintf("pid: %d", *st.Pid))
		}
		if st.ExitCode != nil {
			components = append(components, fmt.Sprintf("exitcode: %d", *st.ExitCode))
		}
		if st.Seconds != nil {
			components = append(components, humanizeSeconds(*st.Seconds))
		}
		if st.Process != "" {
			components = append(components, st.Process)
		}
		if len(components) > 0 {
			fmt.Print("   └─ ")
			for i, c := range components {
				if i > 0 {
					fmt.Print(", ")
				}
				fmt.Print(c)
			}
			fmt.Println()
		}
	}
}

func wrap(text, style string, tty bool) string {
	if !tty {
		return text
	}
	return style + text + styleReset
}

func humanizeSeconds(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%d seconds", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	hours := minutes / 60
	return fmt.Sprintf("%d hours", hours)
}

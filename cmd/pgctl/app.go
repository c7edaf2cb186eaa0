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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pgctl/pgctl/internal/config"
	"github.com/pgctl/pgctl/internal/engine"
	"github.com/pgctl/pgctl/internal/logview"
	"github.com/pgctl/pgctl/internal/service"
)

// app bundles the resolved configuration and the playground directory for
// one pgctl invocation: the object every command.Execute builds its
// service set and engine against (the Go analogue of cli.py's PgctlApp).
type app struct {
	opts          config.Options
	playgroundDir string
}

// newApp resolves the layered configuration (§6) and locates the
// playground directory. The alias file (conf.yaml) lives beside the
// playground directory itself, so resolving aliases needs the playground
// found first; every other option is resolved up front since
// SearchPlayground only needs opts.Pgdir.
func newApp(base config.Options) (*app, error) {
	env := envMap()

	hadAliases := base.Aliases != nil
	opts := config.Resolve(base, config.FileConfig{}, env)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	pgdir, err := config.SearchPlayground(cwd, opts.Pgdir)
	if err != nil {
		return nil, err
	}

	if !hadAliases {
		fileCfg, err := config.LoadFile(filepath.Join(filepath.Dir(pgdir), "conf.yaml"))
		if err != nil {
			return nil, err
		}
		if fileCfg.Aliases != nil {
			opts.Aliases = fileCfg.Aliases
		}
	}

	return &app{opts: opts, playgroundDir: pgdir}, nil
}

func envMap() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

// serviceByName constructs a Service for name, rooted under the playground
// (or treated as an absolute path, matching service_by_name's os.path.isabs
// branch), with its scratch directory mirroring the service's path under
// pghome (§3: "outside the service tree").
func (a *app) serviceByName(name string) *service.Service {
	var path string
	if filepath.IsAbs(name) {
		path = filepath.Clean(name)
	} else {
		path = filepath.Join(a.playgroundDir, name)
	}

	scratch := filepath.Join(a.opts.Pghome, strings.TrimPrefix(path, string(filepath.Separator)))

	return &service.Service{
		Path:           path,
		ScratchDir:     scratch,
		DefaultTimeout: a.opts.Timeout,
	}
}

// allServiceNames lists every subdirectory of the playground, sorted --
// the literal expansion of config.AllServices (§6's "(all services)").
func (a *app) allServiceNames() []string {
	entries, err := os.ReadDir(a.playgroundDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func (a *app) allServices() []*service.Service {
	names := a.allServiceNames()
	out := make([]*service.Service, len(names))
	for i, n := range names {
		out[i] = a.serviceByName(n)
	}
	return out
}

// services expands names through the configured aliases (§6's "Alias
// expansion") and constructs the Service for each result, deduplicating by
// path the way cli.py's "unique(services)" does.
func (a *app) services(names []string) ([]*service.Service, error) {
	expanded, err := config.ExpandAliases(names, a.opts.Aliases, a.allServiceNames)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []*service.Service
	for _, name := range expanded {
		svc := a.serviceByName(name)
		if seen[svc.Path] {
			continue
		}
		seen[svc.Path] = true
		out = append(out, svc)
	}
	return out, nil
}

// newEngine builds an Engine wired to this app's playground, poll interval,
// and force/verbose flags.
func (a *app) newEngine() *engine.Engine {
	e := engine.New(a.playgroundDir, a.allServices())
	e.PollInterval = durationFromSeconds(a.opts.Poll)
	e.NoForce = a.opts.NoForce
	e.Verbose = a.opts.Verbose
	e.Out = os.Stderr
	return e
}

// attachLogViewer gives e a live LogViewer over svcs' log files when
// stdout is a terminal (or PGCTL_FORCE_ENABLE_LOG_VIEWER forces it) and CI
// isn't set (§4.6, §6). Returns a cleanup func that's always safe to call.
func (a *app) attachLogViewer(e *engine.Engine, svcs []*service.Service) func() {
	if !logview.UseLiveViewer(int(os.Stdout.Fd()), a.opts.ForceEnableLogViewer) {
		return func() {}
	}

	nameToPath := make(map[string]string, len(svcs))
	for _, s := range svcs {
		s.EnsureLogs()
		nameToPath[s.Name()] = s.LogfilePath()
	}

	viewer, err := logview.NewLogViewer(10, nameToPath)
	if err != nil {
		return func() {}
	}
	e.LogViewer = viewer
	return viewer.Cleanup
}

// showFailure mirrors cli.py's __show_failure: on a failed start/stop it
// dumps the tail of every failed service's log, additionally stopping any
// service that failed to start (so a half-started service isn't left
// "up"), and returns the single user-facing error §7 specifies.
func (a *app) showFailure(action string, failed []string) error {
	if len(failed) == 0 {
		return nil
	}

	for _, name := range failed {
		svc := a.serviceByName(name)
		printLogTail(svc.LogfilePath(), 30)
	}

	if action == "start" {
		failedServices := make([]*service.Service, len(failed))
		for i, name := range failed {
			failedServices[i] = a.serviceByName(name)
		}
		e := a.newEngine()
		e.Stop(failedServices, false)
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "[pgctl] There might be useful information further up in the log; you can view it by running:")
	for _, name := range failed {
		svc := a.serviceByName(name)
		fmt.Fprintf(os.Stderr, "[pgctl]     less +G %s\n", relOrAbs(svc.LogfilePath()))
	}

	return fmt.Errorf("some services failed to %s: %s", action, strings.Join(failed, ", "))
}

// printLogTail writes the last n lines of path to stderr, prefixed with
// the file name the way "tail --verbose" would, tolerating a missing file
// (a service that never got far enough to write one).
func printLogTail(path string, n int) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	fmt.Fprintf(os.Stderr, "==> %s <==\n", relOrAbs(path))
	for _, line := range lines {
		fmt.Fprintln(os.Stderr, line)
	}
}

// durationFromSeconds converts a float64 seconds value (as read from
// PGCTL_POLL/config) into a time.Duration for the engine's poll interval.
func durationFromSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func relOrAbs(path string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil {
		return path
	}
	return rel
}

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

// Package config loads pgctl's layered configuration (CLI flag >
// environment variable > config file > built-in default) and locates the
// playground directory and the per-alias service groups.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/pgctl/pgctl/internal/pgerrors"
)

// AllServices is the literal alias token that expands to every subdirectory
// of the playground root.
const AllServices = "(all services)"

// Defaults mirror the built-in defaults of the original tool.
const (
	DefaultPgdir   = "playground"
	DefaultTimeout = 2.0
	DefaultPoll    = 0.01
)

// Options holds the fully-resolved configuration for one invocation.
type Options struct {
	Pgdir                string
	Pghome               string
	Timeout              float64
	Poll                 float64
	JSON                 bool
	NoForce              bool
	Verbose              bool
	ForceEnableLogViewer bool
	Aliases              map[string][]string
}

// FileConfig is the on-disk shape of a playground's conf.yaml: currently
// just the alias map, the one piece of configuration too structured to fit
// comfortably into a single environment variable.
type FileConfig struct {
	Aliases map[string][]string `yaml:"aliases"`
}

// LoadFile reads and parses a YAML config file. A missing file is not an
// error -- it's simply treated as "no aliases configured".
func LoadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, err
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

// Resolve applies the precedence CLI flag > environment variable > config
// file > built-in default for every scalar option not already set on base
// by the caller's flag parsing. Callers construct base from go-flags output
// (only the flags the user actually passed should be non-zero) and call
// Resolve to fill in the rest.
func Resolve(base Options, fileCfg FileConfig, env map[string]string) Options {
	opts := base

	if opts.Pgdir == "" {
		opts.Pgdir = firstNonEmpty(env["PGCTL_PGDIR"], DefaultPgdir)
	}
	if opts.Pghome == "" {
		opts.Pghome = firstNonEmpty(env["PGCTL_PGHOME"], defaultPghome(env))
	}
	if opts.Timeout == 0 {
		opts.Timeout = parseFloatOr(env["PGCTL_TIMEOUT"], DefaultTimeout)
	}
	if opts.Poll == 0 {
		opts.Poll = parseFloatOr(env["PGCTL_POLL"], DefaultPoll)
	}
	if !opts.ForceEnableLogViewer {
		opts.ForceEnableLogViewer = env["PGCTL_FORCE_ENABLE_LOG_VIEWER"] == "1"
	}
	if opts.Aliases == nil {
		opts.Aliases = fileCfg.Aliases
	}
	if opts.Aliases == nil {
		opts.Aliases = map[string][]string{"default": {AllServices}}
	}

	return opts
}

func defaultPghome(env map[string]string) string {
	if dir := env["XDG_RUNTIME_DIR"]; dir != "" {
		return filepath.Join(dir, "pgctl")
	}
	home := env["HOME"]
	return filepath.Join(home, ".run", "pgctl")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseFloatOr(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

// SearchPlayground walks from startDir upward looking for a directory named
// pgdirName, stopping at a filesystem (device) boundary. It returns the
// absolute path to the playground directory, or NoPlayground if none is
// found before the walk runs out of parents.
func SearchPlayground(startDir, pgdirName string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	startDev, err := deviceOf(dir)
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, pgdirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached "/"
		}
		dev, err := deviceOf(parent)
		if err != nil || dev != startDev {
			break // crossed a mount boundary
		}
		dir = parent
	}

	return "", &pgerrors.NoPlayground{Name: pgdirName}
}

func deviceOf(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return deviceID(info)
}

// ExpandAliases expands a list of alias/service names into a flat,
// deduplicated list of service names. Each top-level name is expanded
// recursively with its own visited set; meeting any name (alias or
// service) a second time within that one expansion raises CircularAliases,
// while repeats across different top-level names are deduplicated. The literal
// token AllServices expands via allServices (every subdirectory of the
// playground root).
func ExpandAliases(names []string, aliases map[string][]string, allServices func() []string) ([]string, error) {
	var result []string
	seenResult := map[string]bool{}

	for _, name := range names {
		expanded, err := expandOne(name, aliases, allServices, map[string]bool{})
		if err != nil {
			return nil, err
		}
		for _, svc := range expanded {
			if !seenResult[svc] {
				seenResult[svc] = true
				result = append(result, svc)
			}
		}
	}

	return result, nil
}

func expandOne(name string, aliases map[string][]string, allServices func() []string, visited map[string]bool) ([]string, error) {
	if name == AllServices {
		return allServices(), nil
	}
	if visited[name] {
		return nil, &pgerrors.CircularAliases{Name: name}
	}
	visited[name] = true

	targets, isAlias := aliases[name]
	if !isAlias {
		return []string{name}, nil
	}

	var result []string
	for _, target := range targets {
		expanded, err := expandOne(target, aliases, allServices, visited)
		if err != nil {
			return nil, err
		}
		result = append(result, expanded...)
	}
	return result, nil
}

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

// Package readiness implements the sidecar that bridges a service's own
// "is it up yet?" probe (./ready) to the supervisor's readiness
// notification, then heartbeats that probe for the life of the service,
// restarting it if the probe starts failing persistently. See
// cmd/pgctl-ready for the process that wraps a service's run script with
// this daemon.
package readiness

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pgctl/pgctl/internal/logger"
)

// Config carries everything the startup/heartbeat loop needs, discovered
// from files alongside a service's run script (§4.5 and §6).
type Config struct {
	NotificationFD int
	TimeoutReady   time.Duration
	PollReady      time.Duration
	PollDown       time.Duration
}

// DiscoverConfig reads notification-fd, timeout-ready, poll-ready and
// poll-down from dir, falling back to PGCTL_TIMEOUT/PGCTL_POLL and the
// hardcoded defaults poll_ready.py itself uses when neither is set.
func DiscoverConfig(dir string, env map[string]string) (Config, error) {
	fdData, err := os.ReadFile(joinPath(dir, "notification-fd"))
	if err != nil {
		return Config{}, fmt.Errorf("readiness: notification-fd: %w", err)
	}
	fd, err := strconv.Atoi(strings.TrimSpace(string(fdData)))
	if err != nil {
		return Config{}, fmt.Errorf("readiness: notification-fd: %w", err)
	}

	return Config{
		NotificationFD: fd,
		TimeoutReady:   secondsOrEnv(dir, "timeout-ready", env["PGCTL_TIMEOUT"], 2.0),
		PollReady:      secondsOrEnv(dir, "poll-ready", env["PGCTL_POLL"], 0.15),
		PollDown:       secondsOrEnv(dir, "poll-down", env["PGCTL_POLL"], 10.0),
	}, nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func secondsOrEnv(dir, file, envFallback string, def float64) time.Duration {
	if data, err := os.ReadFile(joinPath(dir, file)); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64); err == nil {
			return durationFromSeconds(f)
		}
	}
	if envFallback != "" {
		if f, err := strconv.ParseFloat(envFallback, 64); err == nil {
			return durationFromSeconds(f)
		}
	}
	return durationFromSeconds(def)
}

func durationFromSeconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// LoopConfig parameterizes Loop for testing: the real daemon wires
// CheckReady to executing ./ready, NotifyReady to writing "ready\n" on the
// notification fd, DownEvent to a channel fed by the down-event FIFO, and
// Restart to exec-ing "pgctl restart <service>".
type LoopConfig struct {
	ServiceName  string
	CheckReady   func() bool
	NotifyReady  func() error
	DownEvent    <-chan struct{}
	Sleep        func(time.Duration)
	Restart      func() error
	TimeoutReady time.Duration
	PollReady    time.Duration
	PollDown     time.Duration
	Log          func(format string, args ...any)
}

// errTornDown is returned by the startup phase when the down-event fired;
// Loop turns it into a nil return so the daemon exits cleanly without
// restarting anything.
var errTornDown = fmt.Errorf("readiness: service is stopping")

// Loop runs the startup phase (poll ./ready until it succeeds, then notify)
// followed by the heartbeat phase (poll ./ready, restarting the service if
// it fails persistently for longer than TimeoutReady). It returns nil if
// the down-event fired during either phase (clean teardown); otherwise it
// returns the error from Restart once the failure budget is exhausted.
func Loop(cfg LoopConfig) error {
	if cfg.Log == nil {
		cfg.Log = logger.Noticef
	}

	if err := startupPhase(cfg); err != nil {
		if err == errTornDown {
			return nil
		}
		return err
	}

	return heartbeatPhase(cfg)
}

func startupPhase(cfg LoopConfig) error {
	for {
		select {
		case <-cfg.DownEvent:
			return errTornDown
		default:
		}

		if cfg.CheckReady() {
			return cfg.NotifyReady()
		}

		cfg.Sleep(cfg.PollReady)
	}
}

func heartbeatPhase(cfg LoopConfig) error {
	remaining := cfg.TimeoutReady

	for {
		select {
		case <-cfg.DownEvent:
			cfg.Log("service is stopping -- quitting the poll")
			return nil
		default:
		}

		if cfg.CheckReady() {
			remaining = cfg.TimeoutReady
			cfg.Sleep(cfg.PollDown)
			continue
		}

		remaining -= cfg.PollDown
		cfg.Log("failed (restarting in %s)", remaining)
		if remaining <= 0 {
			cfg.Log("ready check failed -- restarting %s", cfg.ServiceName)
			return cfg.Restart()
		}
		cfg.Sleep(cfg.PollDown)
	}
}

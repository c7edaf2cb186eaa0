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

// Package engine implements pgctl's state-change engine: the orchestrator
// that drives a set of services from an observed state to a requested
// one (start/stop) under the playground-wide locking protocol, with
// per-service timeouts, a cooperative polling loop, and escape-proof
// force-cleanup. See §4.7.
package engine

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pgctl/pgctl/internal/logview"
	"github.com/pgctl/pgctl/internal/osutil"
	"github.com/pgctl/pgctl/internal/pgerrors"
	"github.com/pgctl/pgctl/internal/reaper"
	"github.com/pgctl/pgctl/internal/service"
	"github.com/pgctl/pgctl/internal/sv"
)

// channel is the progress-line prefix every engine message carries,
// matching cli.py's CHANNEL constant.
const channel = "[pgctl]"

// Engine drives state changes for a set of services. The zero value is
// not useful; construct with New.
type Engine struct {
	// PlaygroundDir is the directory holding every service, used to
	// locate the playground-wide pre-start/post-stop hooks.
	PlaygroundDir string
	// AllServices is every service in the playground, used only to decide
	// whether the post-stop hook fires (it must run iff the whole
	// playground -- not just the services in this transition -- is down).
	AllServices []*service.Service
	// PollInterval is the sleep between polling loop ticks.
	PollInterval time.Duration
	// NoForce disables the force-cleanup escape hatch for Stop.
	NoForce bool
	// Verbose makes StopLogs (normally internal-only) progress lines
	// visible too.
	Verbose bool
	// Out receives every "[pgctl] ..." progress line.
	Out io.Writer

	// LogViewer, when set, is redrawn once per polling tick showing
	// "Still <changing> <remaining>" across every pending service (§4.7's
	// polling loop, §4.6/§9's "single write" frame contract). Callers
	// construct it (or leave it nil for the plain, non-interactive path)
	// based on §6's PGCTL_FORCE_ENABLE_LOG_VIEWER / CI / isatty rules.
	LogViewer *logview.LogViewer

	// nowFunc/sleepFunc back now()/sleep() below; tests override them to
	// drive the polling loop deterministically.
	nowFunc   func() time.Time
	sleepFunc func(time.Duration)

	// currentWord is the active variant's ChangingWord (e.g. "starting"),
	// used only to label the LogViewer's "Still X ..." title for the
	// transition currently under way.
	currentWord string
}

// New returns an Engine with the defaults cli.py's PGCTL_DEFAULTS uses
// (a 10ms poll interval) wired to the real clock.
func New(playgroundDir string, allServices []*service.Service) *Engine {
	return &Engine{
		PlaygroundDir: playgroundDir,
		AllServices:   allServices,
		PollInterval:  10 * time.Millisecond,
		Out:           os.Stderr,
		nowFunc:       time.Now,
		sleepFunc:     time.Sleep,
	}
}

func (e *Engine) now() time.Time {
	if e.nowFunc != nil {
		return e.nowFunc()
	}
	return time.Now()
}

func (e *Engine) sleep(d time.Duration) {
	if e.sleepFunc != nil {
		e.sleepFunc(d)
		return
	}
	time.Sleep(d)
}

// printLine writes one "[pgctl] <msg>" progress line.
func (e *Engine) printLine(msg string) {
	if e.Out == nil {
		return
	}
	fmt.Fprintf(e.Out, "%s %s\n", channel, msg)
}

func (e *Engine) logf(format string, args ...any) {
	e.printLine(fmt.Sprintf(format, args...))
}

func commafy(names []string) string {
	return strings.Join(names, ", ")
}

// Start brings every service in services up, idempotently.
func (e *Engine) Start(services []*service.Service) ([]string, error) {
	return e.changeState(variantStart, services)
}

// Stop brings every service in services down. Unless withLogRunning is
// set, the logger sidecar for every service that didn't fail to stop is
// also torn down via the StopLogs variant, run as a second transition so
// the same polling loop drives both (§4.7's "Stop semantics").
func (e *Engine) Stop(services []*service.Service, withLogRunning bool) ([]string, error) {
	failed, err := e.changeState(variantStop, services)
	if err != nil {
		return nil, err
	}

	if withLogRunning {
		return failed, nil
	}

	failedSet := make(map[string]bool, len(failed))
	for _, name := range failed {
		failedSet[name] = true
	}
	var remaining []*service.Service
	for _, s := range services {
		if !failedSet[s.Name()] {
			remaining = append(remaining, s)
		}
	}

	moreFailed, err := e.changeState(variantStopLogs, remaining)
	if err != nil {
		return nil, err
	}
	return append(failed, moreFailed...), nil
}

// Restart stops every service (leaving its logger running, so the
// readiness daemon's chatter during the following start isn't lost) then
// starts it again.
func (e *Engine) Restart(services []*service.Service) ([]string, error) {
	if failed, err := e.Stop(services, true); err != nil || len(failed) > 0 {
		return failed, err
	}
	return e.Start(services)
}

// Debug stops svc if it isn't already down, runs the pre-start hook, then
// execs its run script in the foreground. Never returns on success.
func (e *Engine) Debug(svc *service.Service) error {
	st, err := svc.Svstat()
	if err != nil {
		return err
	}
	if st.State != sv.StateDown && st.State != sv.StateUnsupervised {
		if _, err := e.Stop([]*service.Service{svc}, false); err != nil {
			return err
		}
	}
	if err := e.runHook("pre-start"); err != nil {
		return err
	}
	return svc.Foreground()
}

// ServiceStatus is one service's {ready,up,down} summary, per §4.7's
// status() contract: unsupervised is reported to users as "down".
type ServiceStatus struct {
	Name     string
	State    string
	Pid      *int
	ExitCode *int
	Seconds  *int
	Process  string
}

// Status reports the current state of every service in services.
func (e *Engine) Status(services []*service.Service) ([]ServiceStatus, error) {
	out := make([]ServiceStatus, 0, len(services))
	for _, s := range services {
		st, err := s.Svstat()
		if err != nil {
			return nil, err
		}

		state := st.State.String()
		if st.State == sv.StateUnsupervised {
			state = "down"
		}
		process := ""
		switch st.Process {
		case sv.ProcessStarting:
			process = "starting"
		case sv.ProcessStopping:
			process = "stopping"
		}

		out = append(out, ServiceStatus{
			Name:     s.Name(),
			State:    state,
			Pid:      st.Pid,
			ExitCode: st.ExitCode,
			Seconds:  st.Seconds,
			Process:  process,
		})
	}
	return out, nil
}

// changeState is the shared machinery behind Start/Stop/StopLogs: the
// short-lock assertion fast-path, the pre-start hook, the long-lock
// polling loop, and the post-stop hook, per §4.7's locking protocol.
func (e *Engine) changeState(variant variantSpec, services []*service.Service) ([]string, error) {
	if len(services) == 0 {
		return nil, nil
	}

	alreadyDone, err := e.assertAllUnderLock(variant, services)
	if err != nil {
		return nil, err
	}
	if alreadyDone {
		if e.shouldDisplay(variant) {
			names := make([]string, len(services))
			for i, s := range services {
				names[i] = s.Name()
			}
			e.printLine(fmt.Sprintf("%s %s", variant.alreadyLine(), commafy(names)))
		}
		return nil, nil
	}

	if variant.Action == "start" {
		if err := e.runHook("pre-start"); err != nil {
			return nil, err
		}
	}

	failed, runPostStop, err := e.lockedChangeState(variant, services)
	if err != nil {
		return nil, err
	}

	if runPostStop {
		if err := e.runHook("post-stop"); err != nil {
			return failed, err
		}
	}

	return failed, nil
}

// assertAllUnderLock acquires every service's lock, runs the variant's
// assertion against each, and reports whether all of them already hold
// (the "Already X" fast-path), releasing the locks either way.
func (e *Engine) assertAllUnderLock(variant variantSpec, services []*service.Service) (bool, error) {
	locks, err := e.lockAll(services)
	if err != nil {
		return false, err
	}
	defer e.releaseAll(locks)

	for _, s := range services {
		if err := variant.assert(s); err != nil {
			return false, nil
		}
	}
	return true, nil
}

// lockedChangeState re-acquires every lock and runs the polling loop; for
// the Stop variant it also decides, before releasing the locks, whether
// the whole playground is now down (triggering the post-stop hook).
func (e *Engine) lockedChangeState(variant variantSpec, services []*service.Service) (failed []string, runPostStop bool, err error) {
	locks, err := e.lockAll(services)
	if err != nil {
		return nil, false, err
	}
	defer e.releaseAll(locks)

	if e.shouldDisplay(variant) {
		names := make([]string, len(services))
		for i, s := range services {
			names[i] = s.Name()
		}
		e.printLine(fmt.Sprintf("%s %s", variant.ChangingLine, commafy(names)))
	}

	e.currentWord = variant.ChangingWord
	failed = e.runLoop(bind(variant, services))

	if variant.isStop {
		runPostStop = e.allServicesDown()
	}

	return failed, runPostStop, nil
}

func (e *Engine) shouldDisplay(variant variantSpec) bool {
	return variant.UserFacing || e.Verbose
}

func (e *Engine) allServicesDown() bool {
	for _, s := range e.AllServices {
		st, err := s.Svstat()
		if err != nil {
			return false
		}
		if st.State != sv.StateDown && st.State != sv.StateUnsupervised {
			return false
		}
	}
	return true
}

// lockAll acquires every service's per-invocation lock (§5's ".pgctl.lock"),
// ensuring the service directory exists first, and marks every acquired
// descriptor non-inheritable so children spawned during the transition
// never hold it. On any failure, every lock already acquired is released
// before the error is returned.
func (e *Engine) lockAll(services []*service.Service) ([]*osutil.LockHandle, error) {
	locks := make([]*osutil.LockHandle, 0, len(services))

	for _, s := range services {
		if err := s.EnsureExists(); err != nil {
			e.releaseAll(locks)
			return nil, err
		}

		path := s.LockPath()
		lock, err := osutil.Acquire(path, func(path string) error {
			pids, _ := osutil.Fuser(path, false)
			return &pgerrors.LockHeld{Path: path, Detail: osutil.ProcessTree(pids)}
		})
		if err != nil {
			e.releaseAll(locks)
			return nil, err
		}
		if err := lock.SetInheritable(false); err != nil {
			lock.Release()
			e.releaseAll(locks)
			return nil, err
		}

		locks = append(locks, lock)
	}

	return locks, nil
}

func (e *Engine) releaseAll(locks []*osutil.LockHandle) {
	for _, lock := range locks {
		lock.Release()
	}
}

// runHook executes a playground-wide hook script (pre-start, post-stop)
// if present. Hooks run with the playground's parent directory as their
// cwd (matching cli.py's cwd=self.pgdir.dirname) and without any lock
// held, since they can legitimately be slow.
func (e *Engine) runHook(name string) error {
	path := filepath.Join(e.PlaygroundDir, name)
	if !osutil.IsExec(path) {
		return nil
	}

	cmd := exec.Command(path)
	cmd.Dir = filepath.Dir(e.PlaygroundDir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := reaper.StartCommand(cmd); err != nil {
		return err
	}
	exitCode, err := reaper.WaitCommand(cmd)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("engine: hook %s exited %d", name, exitCode)
	}
	return nil
}

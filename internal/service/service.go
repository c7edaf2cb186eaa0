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

// Package service models one supervised playground unit: a directory
// containing a run script, its scratch directory, timeouts, readiness
// script, supervisor lifecycle, and log path. Every state-changing method
// is idempotent; a Service owns no long-lived resources of its own -- all
// state lives on disk or in the supervisor it talks to via package sv.
package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pgctl/pgctl/internal/logger"
	"github.com/pgctl/pgctl/internal/osutil"
	"github.com/pgctl/pgctl/internal/pgerrors"
	"github.com/pgctl/pgctl/internal/reaper"
	"github.com/pgctl/pgctl/internal/sv"
)

// Service identifies one playground unit.
type Service struct {
	// Path is the service's absolute directory, e.g. playground/redis.
	Path string
	// ScratchDir is outside the service tree; it holds supervisor runtime
	// state (the supervise FIFO directory, the supervisor's own lock) that
	// must not leak into source control.
	ScratchDir string
	// DefaultTimeout is used when a service has no timeout-ready or
	// timeout-stop override file.
	DefaultTimeout float64
}

// Name is the basename of Path.
func (s *Service) Name() string {
	return filepath.Base(s.Path)
}

func (s *Service) String() string {
	return s.Name()
}

// readyScriptPath is the optional executable whose exit 0 means "ready".
func (s *Service) readyScriptPath() string {
	return filepath.Join(s.Path, "ready")
}

func (s *Service) hasReadyScript() bool {
	return osutil.IsExec(s.readyScriptPath())
}

// LogfilePath is the rotating log file maintained by the log sidecar.
func (s *Service) LogfilePath() string {
	return filepath.Join(s.Path, "logs", "current")
}

func (s *Service) supervisePath() string {
	return filepath.Join(s.Path, "supervise")
}

func (s *Service) scratchSupervisePath() string {
	return filepath.Join(s.ScratchDir, "supervise")
}

// supervisorLockPath is the lock held by the supervisor process for its
// lifetime (distinct from the per-invocation .pgctl.lock the engine takes).
// AssertStopped and ForceCleanup use it to detect escaped children of a
// dead supervisor, per §5's "Supervisor lock (inside scratch_dir)".
func (s *Service) supervisorLockPath() string {
	return filepath.Join(s.scratchSupervisePath(), "lock")
}

func (s *Service) logPath() string {
	return filepath.Join(s.Path, "log")
}

// LockPath is the per-invocation lock the engine holds for the duration of
// a state change, distinct from supervisorLockPath (§5's ".pgctl.lock").
func (s *Service) LockPath() string {
	return filepath.Join(s.Path, ".pgctl.lock")
}

// TimeoutReady returns the service's timeout-ready override, or
// DefaultTimeout if no override file exists.
func (s *Service) TimeoutReady() float64 {
	return s.readTimeoutFile("timeout-ready")
}

// TimeoutStop returns the service's timeout-stop override, or
// DefaultTimeout if no override file exists.
func (s *Service) TimeoutStop() float64 {
	return s.readTimeoutFile("timeout-stop")
}

func (s *Service) readTimeoutFile(name string) float64 {
	data, err := os.ReadFile(filepath.Join(s.Path, name))
	if err != nil {
		return s.DefaultTimeout
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return s.DefaultTimeout
	}
	return f
}

// EnsureExists fails with NoSuchService if the directory is missing;
// otherwise it reconciles the supervise symlink.
func (s *Service) EnsureExists() error {
	info, err := os.Stat(s.Path)
	if err != nil || !info.IsDir() {
		return &pgerrors.NoSuchService{Name: s.Name()}
	}
	return s.reconcileSuperviseSymlink()
}

// reconcileSuperviseSymlink ensures Path/supervise -> ScratchDir/supervise,
// tolerating a user having moved the repository since the symlink was last
// created (§3 invariant: "the core reconciles this on every access").
func (s *Service) reconcileSuperviseSymlink() error {
	target := s.scratchSupervisePath()
	link := s.supervisePath()

	current, err := os.Readlink(link)
	if err == nil && current == target {
		return nil
	}

	os.Remove(link)
	return os.Symlink(target, link)
}

// EnsureLogs ensures logs/ exists under the service's directory.
func (s *Service) EnsureLogs() error {
	return osutil.Mkdir(filepath.Join(s.Path, "logs"), 0o755, &osutil.MkdirOptions{MakeParents: true, ExistOK: true})
}

// EnsureDirectoryStructure materializes the scratch dir, the logger FIFO
// directory, the notification-fd file (if a ready script exists), and
// removes any stale "down" marker left by a previous invocation.
func (s *Service) EnsureDirectoryStructure() error {
	if err := osutil.Mkdir(s.scratchSupervisePath(), 0o755, &osutil.MkdirOptions{MakeParents: true, ExistOK: true}); err != nil {
		return err
	}
	if err := s.reconcileSuperviseSymlink(); err != nil {
		return err
	}
	if err := osutil.Mkdir(filepath.Join(s.logPath(), "supervise"), 0o755, &osutil.MkdirOptions{MakeParents: true, ExistOK: true}); err != nil {
		return err
	}

	if s.hasReadyScript() {
		fdFile := filepath.Join(s.Path, "notification-fd")
		if !osutil.CanStat(fdFile) {
			if err := os.WriteFile(fdFile, []byte("3\n"), 0o644); err != nil {
				return err
			}
		}
	}

	down := filepath.Join(s.scratchSupervisePath(), "down")
	os.Remove(down)

	return nil
}

// Supervised reports whether a supervisor process is currently attached to
// this service, reconciling the supervise symlink first.
func (s *Service) Supervised() (bool, error) {
	if err := s.reconcileSuperviseSymlink(); err != nil {
		return false, err
	}
	st, err := sv.Stat(s.Path)
	if err != nil {
		return false, err
	}
	return st.State != sv.StateUnsupervised, nil
}

// Svstat wraps sv.Stat, synthesizing a ready state when the service has no
// readiness script: either it is cleanly up, or it is restarting at second
// 0 with exit code 0 (a momentary blip during "normally up", not a
// failure).
func (s *Service) Svstat() (sv.Status, error) {
	st, err := sv.Stat(s.Path)
	if err != nil {
		return sv.Status{}, err
	}
	if s.hasReadyScript() {
		return st, nil
	}

	switch {
	case st.State == sv.StateUp:
		st.State = sv.StateReady
	case st.State == sv.StateDown && st.Process == sv.ProcessStarting &&
		st.ExitCode != nil && *st.ExitCode == 0 &&
		st.Seconds != nil && *st.Seconds == 0:
		st.State = sv.StateReady
	}
	return st, nil
}

// Start ensures a supervisor is running in the background, then asks it to
// bring the service up.
func (s *Service) Start() error {
	supervised, err := s.Supervised()
	if err != nil {
		return err
	}
	if !supervised {
		if err := s.Background(); err != nil {
			return err
		}
	}
	if err := sv.Control(s.Path, "-u"); err != nil {
		if errors.Is(err, sv.ErrUnsupervised) {
			return &pgerrors.Unsupervised{Service: s.Name()}
		}
		return err
	}
	return nil
}

// Stop asks the supervisor to bring the service down and unsupervise it.
func (s *Service) Stop() error {
	return s.controlVerb(s.Path, "-dx")
}

// StopLogs does the same, targeting the logger sidecar specifically.
func (s *Service) StopLogs() error {
	return s.controlVerb(s.logPath(), "-dx")
}

func (s *Service) controlVerb(path, verb string) error {
	if err := sv.Control(path, verb); err != nil {
		if errors.Is(err, sv.ErrUnsupervised) {
			return &pgerrors.Unsupervised{Service: s.Name()}
		}
		return err
	}
	return nil
}

// AssertReady raises NotReady unless the service's state is ready.
func (s *Service) AssertReady() error {
	st, err := s.Svstat()
	if err != nil {
		return err
	}
	if st.State != sv.StateReady {
		return &pgerrors.NotReady{Service: s.Name(), Status: st.String()}
	}
	return nil
}

// AssertStopped raises NotReady unless the supervisor is unsupervised, and
// LockHeld if some process still holds the supervisor's own lock (an
// escapee Fuser can find). When withLogRunning is true the logger sidecar
// is allowed to remain up.
func (s *Service) AssertStopped(withLogRunning bool) error {
	st, err := sv.Stat(s.Path)
	if err != nil {
		return err
	}
	if st.State != sv.StateUnsupervised {
		return &pgerrors.NotReady{Service: s.Name(), Status: st.String()}
	}

	if err := s.assertRunawayFree(); err != nil {
		return err
	}

	if !withLogRunning {
		logSt, err := sv.Stat(s.logPath())
		if err != nil {
			return err
		}
		if logSt.State != sv.StateUnsupervised {
			return &pgerrors.NotReady{Service: s.Name(), Status: logSt.String()}
		}
	}

	return nil
}

// assertRunawayFree tries a non-blocking acquire of the supervisor's own
// lock; if some process still holds it, the supervisor is gone but an
// escaped child of it is not (§3, §5: "Supervisor lock ... used by Fuser to
// find escapees"). That's reported as a Runaway LockHeld -- distinct from
// ordinary inter-pgctl ".pgctl.lock" contention -- so its message reads
// "these runaway processes did not stop" (§8 scenario 4) rather than
// "another pgctl command is currently managing this service".
func (s *Service) assertRunawayFree() error {
	path := s.supervisorLockPath()
	if !osutil.CanStat(path) {
		return nil
	}
	h, err := osutil.Acquire(path, func(string) error {
		pids, _ := osutil.Fuser(path, false)
		return &pgerrors.LockHeld{Path: path, Detail: osutil.ProcessTree(pids), Runaway: true}
	})
	if err != nil {
		return err
	}
	return h.Release()
}

// ForceCleanup enumerates the pids holding the supervisor's own lock via
// Fuser and SIGKILLs each of them, returning a warning string describing
// what was killed. Only Stop supports forcing; Start and StopLogs return
// NotImplemented.
func (s *Service) ForceCleanup(isStop bool) (string, error) {
	if !isStop {
		return "", &pgerrors.NotImplemented{What: "force-cleanup of this transition"}
	}

	pids, err := osutil.Fuser(s.supervisorLockPath(), true)
	if err != nil {
		return "", nil // nothing to report; the lock file may not exist yet
	}
	if len(pids) == 0 {
		return "", nil
	}

	// Capture the process tree before killing -- once SIGKILL lands, ps
	// can no longer describe the processes being reported on.
	tree := osutil.ProcessTree(pids)

	killed := false
	for _, pid := range pids {
		if err := syscall.Kill(pid, syscall.SIGKILL); err == nil {
			killed = true
		}
	}
	if !killed {
		return "", nil
	}

	detail := tree
	if detail == "" {
		names := make([]string, len(pids))
		for i, pid := range pids {
			names[i] = strconv.Itoa(pid)
		}
		detail = strings.Join(names, ", ")
	}

	return fmt.Sprintf(
		"WARNING: Killing these runaway processes which did not stop:\n%s\nThis usually means these processes are buggy.\nLearn more: https://pgctl.readthedocs.org/en/latest/user/quickstart.html#writing-playground-services",
		detail,
	), nil
}

// Background spawns a supervisor process for the service in a new session
// (a single fork with Setsid; it does not double-fork): stdin is
// /dev/null, stdout/stderr are piped through a timestamp-prepending writer
// into logs/current, and the environment is extended with PGCTL_SCRATCH,
// PGCTL_SERVICE, and PGCTL_SERVICE_LOCK (the supervisor lock's descriptor
// number in the supervisor, kept open across the spawn so the supervisor
// inherits its lifetime).
func (s *Service) Background() error {
	if err := s.EnsureLogs(); err != nil {
		return err
	}

	logFile, err := os.OpenFile(s.LogfilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer devNull.Close()

	lock, err := osutil.Acquire(s.supervisorLockPath(), nil)
	if err != nil {
		return err
	}
	// Deliberately left inheritable: the supervisor holds this lock for its
	// lifetime, and Fuser/ForceCleanup rely on finding it there.

	cmd := exec.Command("s6-supervise", s.Path)
	cmd.Stdin = devNull
	cmd.Stdout = timestampWriter(logFile)
	cmd.Stderr = cmd.Stdout
	cmd.Dir = s.Path
	cmd.Env = append(os.Environ(),
		"PGCTL_SCRATCH="+s.ScratchDir,
		"PGCTL_SERVICE="+s.Path,
		// ExtraFiles[0] below is descriptor 3 in the child.
		"PGCTL_SERVICE_LOCK=3",
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.ExtraFiles = []*os.File{os.NewFile(uintptr(lock.Fd()), "pgctl-service-lock")}

	if err := reaper.StartCommand(cmd); err != nil {
		lock.Release()
		return err
	}
	logger.Debugf("started supervisor for %s (pid %d)", s.Name(), cmd.Process.Pid)
	return nil
}

// timestampWriter wraps w with a writer that prefixes each line with an
// ISO8601 millisecond timestamp, matching the "log-timestamping filter"
// §1 names as an external collaborator.
func timestampWriter(w io.Writer) io.Writer {
	return logger.New(w, "")
}

// Foreground execs the service's run script directly in the current
// process with PGCTL_DEBUG=true. It never returns on success.
func (s *Service) Foreground() error {
	run := filepath.Join(s.Path, "run")
	env := append(os.Environ(), "PGCTL_DEBUG=true")
	return syscall.Exec(run, []string{run}, env)
}

// Message runs the hook file named "<verb>-msg" inside the service's
// directory, if present, and returns its stdout.
func (s *Service) Message(verb string) (string, error) {
	msgScript := filepath.Join(s.Path, verb+"-msg")
	if !osutil.IsExec(msgScript) {
		return "", nil
	}
	cmd := exec.Command(msgScript)
	cmd.Dir = s.Path
	out, err := reaper.CommandCombinedOutput(cmd)
	return string(out), err
}

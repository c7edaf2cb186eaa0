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

package readiness

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pgctl/pgctl/internal/osutil"
)

// Wrap is cmd/pgctl-ready's entry point when invoked as the run script's
// wrapper: "pgctl-ready <run-script> [args...]". When PGCTL_DEBUG is "true",
// the daemon is disabled entirely and argv is exec'd directly (§4.5 point
// 1). Otherwise it creates the down-event FIFO, spawns a detached sibling
// process to run the heartbeat loop, and then execs into argv itself --
// the process s6 supervises keeps the service's own pid, matching
// poll_ready.py's "parent execs the wrapped command" behavior even though
// Go has no fork() to invert the roles with.
func Wrap(argv []string) error {
	if os.Getenv("PGCTL_DEBUG") == "true" {
		return execArgv(argv)
	}

	pid := os.Getpid()
	fifoPath := DownEventFIFOName(pid)
	if err := CreateDownEventFIFO(fifoPath); err != nil {
		return fmt.Errorf("readiness: creating down-event fifo: %w", err)
	}

	daemon := exec.Command(selfExe(), "-daemon", fifoPath)
	daemon.Dir, _ = os.Getwd()
	daemon.Env = os.Environ()
	daemon.Stdout = os.Stdout
	daemon.Stderr = os.Stderr
	daemon.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := daemon.Start(); err != nil {
		os.Remove(fifoPath)
		return fmt.Errorf("readiness: starting daemon: %w", err)
	}

	return execArgv(argv)
}

func selfExe() string {
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	return os.Args[0]
}

func execArgv(argv []string) error {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return err
	}
	return syscall.Exec(path, argv, os.Environ())
}

// RunDaemon is the "-daemon <fifo-path>" mode: it discovers the service's
// readiness configuration from the current directory, watches the
// down-event FIFO, and runs Loop until teardown or a restart is triggered.
func RunDaemon(fifoPath string) error {
	cfg, err := DiscoverConfig(".", osutil.Environ())
	if err != nil {
		return err
	}

	downEvent, closeFIFO, err := WatchDownEventFIFO(fifoPath)
	if err != nil {
		return err
	}
	defer closeFIFO()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	serviceName := filepath.Base(wd)

	notifyFD := cfg.NotificationFD
	return Loop(LoopConfig{
		ServiceName:  serviceName,
		TimeoutReady: cfg.TimeoutReady,
		PollReady:    cfg.PollReady,
		PollDown:     cfg.PollDown,
		DownEvent:    downEvent,
		Sleep:        time.Sleep,
		CheckReady: func() bool {
			cmd := exec.Command("./ready")
			return cmd.Run() == nil
		},
		NotifyReady: func() error {
			f := os.NewFile(uintptr(notifyFD), "notification-fd")
			_, err := f.Write([]byte("ready\n"))
			return err
		},
		Restart: func() error {
			// Chdir out of the service directory first so we don't hold
			// the service-is-up lock across the exec, mirroring
			// poll_ready.py's chdir before re-execing into "pgctl restart".
			os.Chdir(filepath.Dir(wd))
			path, err := exec.LookPath("pgctl")
			if err != nil {
				return err
			}
			return syscall.Exec(path, []string{"pgctl", "restart", serviceName}, os.Environ())
		},
	})
}

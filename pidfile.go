package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
)

// watchPIDName is the PID file of a running "sync --watch" in the state directory.
const watchPIDName = "watch.pid"

// pidFilePermissions matches the state directory: owner only.
const pidFilePermissions = 0o600

func watchPIDPath(stateDir string) string {
	if stateDir == "" {
		return ""
	}

	return filepath.Join(stateDir, watchPIDName)
}

// writePIDFile writes the current process ID to path while holding an
// exclusive lock on path+".lock". The returned cleanup removes the PID file
// and releases the lock. A held lock means another watcher is running.
func writePIDFile(path string) (cleanup func(), err error) {
	if path == "" {
		return nil, fmt.Errorf("PID file path is empty: cannot determine state directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	lock := flock.New(path + ".lock")

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", lock.Path(), err)
	}

	if !locked {
		return nil, fmt.Errorf("another sync --watch is already running for this folder (lock %s is held)", lock.Path())
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), pidFilePermissions); err != nil {
		lock.Unlock()

		return nil, fmt.Errorf("writing PID file: %w", err)
	}

	return func() {
		os.Remove(path)
		lock.Unlock()
	}, nil
}

// readPIDFile reads the PID from path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}

// runningWatcher returns the PID of a live watcher for stateDir, or 0.
// Stale PID files are ignored.
func runningWatcher(stateDir string) int {
	pid, err := readPIDFile(watchPIDPath(stateDir))
	if err != nil {
		return 0
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil && !errors.Is(err, syscall.EPERM) {
		return 0
	}

	return pid
}

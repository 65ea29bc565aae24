//go:build !windows
// +build !windows

package instance

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/agentctl/engine/internal/procutil"
)

// IsProcessRunning checks whether pid is alive and, if /proc exposes the
// executable's comm name, that it still looks like this binary rather
// than a PID slot the kernel recycled to an unrelated process.
func IsProcessRunning(pid int) (bool, error) {
	if !procutil.IsRunning(pid) {
		return false, nil
	}
	name, err := GetProcessName(pid)
	if err != nil {
		// /proc unreadable (permissions, non-Linux unix): trust the liveness probe alone.
		return true, nil
	}
	return strings.EqualFold(name, processName), nil
}

// GetProcessName reads the executable name for pid from /proc/<pid>/comm.
func GetProcessName(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// GetProcessStartTime is unused outside Windows-only status reporting; the
// pid file's own StartedAt timestamp serves the same purpose here.
func GetProcessStartTime(pid int) (time.Time, error) {
	return time.Time{}, fmt.Errorf("GetProcessStartTime is not supported on this platform")
}

// KillProcess sends SIGKILL to pid.
func KillProcess(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}

//go:build !windows
// +build !windows

package procutil

import "syscall"

// isRunning sends signal 0, the POSIX idiom for "does this PID exist and
// am I allowed to signal it" without actually delivering a signal.
func isRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil
}

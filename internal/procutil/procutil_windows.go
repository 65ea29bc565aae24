//go:build windows
// +build windows

package procutil

import "golang.org/x/sys/windows"

// isRunning opens the process with limited query rights: OpenProcess
// succeeding is enough evidence the PID is live (Windows reuses PIDs only
// after an unmapped interval long enough that this is an acceptable check
// here).
func isRunning(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	windows.CloseHandle(handle)
	return true
}

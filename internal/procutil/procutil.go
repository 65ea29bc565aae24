// Package procutil probes whether the OS process backing an agent
// runtime is still alive, so Stuck-Task Recovery and the agent registry
// can tell "agent went quiet" (reclaim and retry) apart from "agent
// process is gone" (mark offline, never reassign).
package procutil

// IsRunning reports whether pid refers to a live process. Platform
// implementations live in procutil_windows.go / procutil_unix.go.
func IsRunning(pid int) bool {
	return isRunning(pid)
}

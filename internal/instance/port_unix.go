//go:build !windows
// +build !windows

package instance

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// GetProcessUsingPort attempts to find which process is using a given port,
// via lsof (present on Linux and macOS dev boxes alike). Returns the PID,
// or an error if none is found.
func GetProcessUsingPort(port int) (int, error) {
	cmd := exec.Command("lsof", "-t", "-i", fmt.Sprintf(":%d", port), "-sTCP:LISTEN")
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("lsof command failed: %w", err)
	}

	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil {
			return pid, nil
		}
	}

	return 0, fmt.Errorf("no process found listening on port %d", port)
}

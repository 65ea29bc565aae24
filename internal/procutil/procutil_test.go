package procutil

import (
	"os"
	"testing"
)

func TestIsRunningTrueForSelf(t *testing.T) {
	if !IsRunning(os.Getpid()) {
		t.Error("expected the current process to report as running")
	}
}

func TestIsRunningFalseForInvalidPID(t *testing.T) {
	if IsRunning(-1) {
		t.Error("expected a negative pid to report as not running")
	}
}

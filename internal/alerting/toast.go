package alerting

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// ToastNotifier fires a native OS toast when a task-level alert fires.
// Only Windows actually supports the underlying API; elsewhere
// IsSupported reports false and callers skip it.
type ToastNotifier struct {
	appID        string
	dashboardURL string
}

// NewToastNotifier creates a toast notifier for appID, defaulting both
// fields when empty.
func NewToastNotifier(appID, dashboardURL string) *ToastNotifier {
	if appID == "" {
		appID = "agentctl"
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8080"
	}
	return &ToastNotifier{appID: appID, dashboardURL: dashboardURL}
}

// IsSupported reports whether toast notifications work on this platform.
func (t *ToastNotifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}

// NotifyAlert pushes a toast for a fleet alert, with an action linking
// back to the dashboard.
func (t *ToastNotifier) NotifyAlert(severity, message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on Windows")
	}

	audio := toast.Default
	if severity == "critical" {
		audio = toast.IM
	}

	n := toast.Notification{
		AppID:   t.appID,
		Title:   fmt.Sprintf("Fleet alert (%s)", severity),
		Message: message,
		Audio:   audio,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: t.dashboardURL},
		},
	}
	return n.Push()
}

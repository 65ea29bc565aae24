package alerting

import (
	"sync"
	"time"
)

// Severity mirrors the event bus's alert severities:
// "warning" for stuck-task reclaims and failed reviews, "critical" for
// operator-facing escalations).
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// BannerState is the dashboard's current alert banner, served by
// internal/server and pushed over the WebSocket hub.
type BannerState struct {
	Visible   bool      `json:"visible"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	TaskID    string    `json:"taskId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BannerNotifier holds the single current dashboard banner. Only the
// most recent alert is shown — a new Show replaces whatever was there.
type BannerNotifier struct {
	mu    sync.RWMutex
	state BannerState
}

// NewBannerNotifier creates an empty (hidden) banner.
func NewBannerNotifier() *BannerNotifier {
	return &BannerNotifier{}
}

// Show replaces the banner with a new alert.
func (b *BannerNotifier) Show(severity Severity, taskID, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BannerState{Visible: true, Message: message, Severity: severity, TaskID: taskID, Timestamp: time.Now()}
}

// Clear hides the banner.
func (b *BannerNotifier) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BannerState{}
}

// State returns the current banner, for the dashboard snapshot endpoint.
func (b *BannerNotifier) State() BannerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

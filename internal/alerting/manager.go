// Package alerting fans out the Event Bridge's alert topic to the
// operator-facing channels: a native
// toast, the terminal title bar, and a dashboard banner. Subscribing is
// the entire integration surface — the Executor and Recovery sweeper
// never import this package directly ("event emission coupled
// with state change... never before" — alerting reacts, it doesn't gate).
package alerting

import (
	"log"
	"sync"

	"github.com/agentctl/engine/internal/events"
)

// Config controls which channels are active.
type Config struct {
	AppID          string
	DashboardURL   string
	TerminalTitle  string
	EnableToast    bool
	EnableTerminal bool
	EnableBanner   bool
}

// DefaultConfig enables every channel.
func DefaultConfig() Config {
	return Config{
		AppID: "agentctl", DashboardURL: "http://localhost:8080", TerminalTitle: "agentctl",
		EnableToast: true, EnableTerminal: true, EnableBanner: true,
	}
}

// Manager fans an alert out to every enabled channel, swallowing
// per-channel errors (a missing OS feature must never interrupt the
// engine's control flow).
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	toast    *ToastNotifier
	terminal *TerminalNotifier
	banner   *BannerNotifier
	enabled  bool
}

// NewManager builds a Manager from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		toast:    NewToastNotifier(cfg.AppID, cfg.DashboardURL),
		terminal: NewTerminalNotifier(cfg.TerminalTitle),
		banner:   NewBannerNotifier(),
		enabled:  cfg.EnableToast || cfg.EnableTerminal || cfg.EnableBanner,
	}
}

// Subscribe wires Manager to bus's alert topic; call once at startup.
func (m *Manager) Subscribe(bus *events.Bus) {
	bus.Subscribe(func(evt events.Event) {
		severity, _ := evt.Payload["severity"].(string)
		if severity == "" {
			severity = string(SeverityWarning)
		}
		message, _ := evt.Payload["message"].(string)
		taskID, _ := evt.Payload["taskId"].(string)
		m.Notify(Severity(severity), taskID, message)
	}, events.Alert)
}

// Notify fans an alert out to every enabled channel.
func (m *Manager) Notify(severity Severity, taskID, message string) {
	m.mu.RLock()
	enabled := m.enabled
	m.mu.RUnlock()
	if !enabled {
		return
	}

	if m.cfg.EnableBanner {
		m.banner.Show(severity, taskID, message)
	}

	if m.cfg.EnableToast && m.toast.IsSupported() {
		if err := m.toast.NotifyAlert(string(severity), message); err != nil {
			log.Printf("[ALERTING] toast failed: %v", err)
		}
	}

	if m.cfg.EnableTerminal && m.terminal.IsSupported() {
		if err := m.terminal.Flash(string(severity), message); err != nil {
			log.Printf("[ALERTING] terminal flash failed: %v", err)
		}
	}
}

// Clear resets the terminal title and hides the banner.
func (m *Manager) Clear() {
	if m.cfg.EnableTerminal && m.terminal.IsSupported() {
		if err := m.terminal.Clear(); err != nil {
			log.Printf("[ALERTING] terminal clear failed: %v", err)
		}
	}
	m.banner.Clear()
}

// BannerState exposes the current banner, for the dashboard snapshot
// endpoint.
func (m *Manager) BannerState() BannerState {
	return m.banner.State()
}

// Enabled reports whether any channel is active.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// SetEnabled toggles every channel at once (dashboard admin control).
func (m *Manager) SetEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = on
}

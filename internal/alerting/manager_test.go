package alerting

import (
	"testing"

	"github.com/agentctl/engine/internal/events"
)

func TestNotifyShowsBanner(t *testing.T) {
	cfg := Config{EnableBanner: true}
	m := NewManager(cfg)

	m.Notify(SeverityWarning, "t1", "task timed out")

	state := m.BannerState()
	if !state.Visible || state.Message != "task timed out" || state.TaskID != "t1" {
		t.Errorf("unexpected banner state: %+v", state)
	}
}

func TestClearHidesBanner(t *testing.T) {
	m := NewManager(Config{EnableBanner: true})
	m.Notify(SeverityCritical, "t1", "boom")
	m.Clear()

	if m.BannerState().Visible {
		t.Error("expected banner hidden after Clear")
	}
}

func TestSubscribeReactsToAlertEvents(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(Config{EnableBanner: true})
	m.Subscribe(bus)

	bus.Publish(events.New(events.Alert, map[string]any{
		"severity": "warning", "taskId": "t9", "message": "stuck task reclaimed",
	}))

	state := m.BannerState()
	if !state.Visible || state.TaskID != "t9" {
		t.Errorf("expected subscriber to update banner, got %+v", state)
	}
}

func TestDisabledManagerIgnoresNotify(t *testing.T) {
	m := NewManager(Config{})
	m.Notify(SeverityWarning, "t1", "ignored")
	if m.BannerState().Visible {
		t.Error("expected disabled manager to skip all channels")
	}
}

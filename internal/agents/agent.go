// Package agents defines the Agent entity — a long-lived executor
// endpoint the Assigner and Executor hand tasks to — and an in-memory
// registry mirroring the agents table.
package agents

import (
	"time"

	"github.com/agentctl/engine/internal/apperr"
)

// Status is an Agent's current availability.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusStuck   Status = "stuck"
	StatusOffline Status = "offline"
)

// Type determines which tiers an Agent can serve: coder serves
// the local tier only, qa serves hosted tiers, cto is the escalation actor
// reserved for the top tier (decomposition and human escalation).
type Type string

const (
	TypeCoder Type = "coder"
	TypeQA    Type = "qa"
	TypeCTO   Type = "cto"
)

// Config is an Agent's static configuration.
type Config struct {
	PreferredModel  string `json:"preferredModel,omitempty"`
	AlwaysUseHosted bool   `json:"alwaysUseHosted"`
	MaxContextTokens int   `json:"maxContextTokens,omitempty"`
}

// Stats are the rolling statistics an Agent accumulates across completions.
type Stats struct {
	Completed        int     `json:"completed"`
	Failed           int     `json:"failed"`
	SuccessRate      float64 `json:"successRate"`
	TotalAPICredits  float64 `json:"totalApiCredits"`
	TotalTimeMs      int64   `json:"totalTimeMs"`
}

// Agent is a long-lived executor endpoint.
type Agent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	AgentType     Type      `json:"agentType"`
	Status        Status    `json:"status"`
	CurrentTaskID string    `json:"currentTaskId,omitempty"`
	Stats         Stats     `json:"stats"`
	Config        Config    `json:"config"`
	LastSeen      time.Time `json:"lastSeen"`

	// PID is the OS process id backing this agent's runtime, when it runs
	// on the same host as the engine. Zero means unknown/remote — the
	// liveness sweep skips it.
	PID int `json:"pid,omitempty"`
}

// New builds an idle Agent with the given id/name/type.
func New(id, name string, agentType Type) *Agent {
	return &Agent{
		ID:        id,
		Name:      name,
		AgentType: agentType,
		Status:    StatusIdle,
		LastSeen:  time.Now(),
	}
}

// CanServeTier reports whether this agent's type may serve tier: coder
// serves ollama; qa serves haiku and sonnet; cto serves sonnet and opus.
func (a *Agent) CanServeTier(tier string) bool {
	switch a.AgentType {
	case TypeCoder:
		return tier == "ollama"
	case TypeQA:
		return tier == "haiku" || tier == "sonnet"
	case TypeCTO:
		return tier == "opus" || tier == "sonnet"
	default:
		return false
	}
}

// MarkBusy assigns taskID and flips status to busy, maintaining the
// invariant currentTaskId is non-null iff status in {busy, stuck}.
func (a *Agent) MarkBusy(taskID string) {
	a.CurrentTaskID = taskID
	a.Status = StatusBusy
}

// MarkIdle clears the current task and flips status to idle.
func (a *Agent) MarkIdle() {
	a.CurrentTaskID = ""
	a.Status = StatusIdle
}

// MarkStuck flips status to stuck without clearing the current task — used
// by Stuck-Task Recovery's diagnostic path before it reclaims the task.
func (a *Agent) MarkStuck() {
	a.Status = StatusStuck
}

// RecordCompletion updates rolling stats after a successful completion.
func (a *Agent) RecordCompletion(apiCredits float64, timeMs int64) {
	a.Stats.Completed++
	a.Stats.TotalAPICredits += apiCredits
	a.Stats.TotalTimeMs += timeMs
	a.recalculateSuccessRate()
}

// RecordFailure updates rolling stats after a failed or aborted task.
func (a *Agent) RecordFailure() {
	a.Stats.Failed++
	a.recalculateSuccessRate()
}

func (a *Agent) recalculateSuccessRate() {
	total := a.Stats.Completed + a.Stats.Failed
	if total == 0 {
		a.Stats.SuccessRate = 0
		return
	}
	a.Stats.SuccessRate = float64(a.Stats.Completed) / float64(total)
}

// RequireIdle returns nil if the agent is idle, else a Conflict error —
// used by the Assigner's precondition check before assignment.
func (a *Agent) RequireIdle() error {
	if a.Status != StatusIdle {
		return apperr.Conflictf("agent %s is not idle (status=%s)", a.ID, a.Status)
	}
	return nil
}

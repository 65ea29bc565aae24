// Package events implements the in-process half of the Event Bridge: a
// canonical lifecycle event set and a synchronous fan-out bus. Subscribers
// must be non-blocking or offload their own work.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is one of the canonical lifecycle events.
type Type string

const (
	TaskCreated          Type = "task_created"
	TaskUpdated          Type = "task_updated"
	TaskDeleted          Type = "task_deleted"
	TaskAssigned         Type = "task_assigned"
	TaskCompleted        Type = "task_completed"
	TaskFailed           Type = "task_failed"
	TaskNeedsHumanReview Type = "task_needs_human_review"
	AgentStatusChanged   Type = "agent_status_changed"
	ExecutionStep        Type = "execution_step"
	Alert                Type = "alert"
	CodeReviewCompleted  Type = "code_review_completed"
	AutoRetryValidation  Type = "auto_retry_validation"
	AutoRetryAttempt     Type = "auto_retry_attempt"
	AutoRetryResult      Type = "auto_retry_result"
)

// AllTypes lists every canonical event, mainly useful for tests and
// dashboards that want to enumerate what they can subscribe to.
func AllTypes() []Type {
	return []Type{
		TaskCreated, TaskUpdated, TaskDeleted, TaskAssigned, TaskCompleted,
		TaskFailed, TaskNeedsHumanReview, AgentStatusChanged, ExecutionStep,
		Alert, CodeReviewCompleted, AutoRetryValidation, AutoRetryAttempt,
		AutoRetryResult,
	}
}

// Event is the single envelope carried by both transports: every event
// carries {type, payload, timestamp}; task_* events carry the full task,
// agent_status_changed carries the full agent.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

// New builds an Event with a fresh id and the current timestamp.
func New(t Type, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

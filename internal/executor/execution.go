// Package executor owns the task lifecycle from assignment through a
// terminal state: starting an attempt, running validation, driving the
// Auto-Retry Ladder, and releasing resources on completion/failure/abort.
package executor

import "time"

// ExecutionStatus is the lifecycle state of one TaskExecution row.
type ExecutionStatus string

const (
	ExecutionStarted   ExecutionStatus = "started"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// TaskExecution is a per-attempt record: one row per agent-facing attempt,
// never mutated after it reaches a terminal status.
type TaskExecution struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"taskId"`
	AgentID     string          `json:"agentId"`
	Iteration   int             `json:"iteration"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Metrics     map[string]any  `json:"metrics,omitempty"`
	Input       string          `json:"input,omitempty"`
	Output      string          `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// ExecutionLog is one step an agent took within an attempt. Consumed by
// the post-hoc complexity calculation (§4.5.1) and the Code Review gate.
type ExecutionLog struct {
	ID          string `json:"id"`
	ExecutionID string `json:"executionId"`
	StepIndex   int    `json:"stepIndex"`
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action,omitempty"`
	Input       string `json:"input,omitempty"`
	Observation string `json:"observation,omitempty"`
	DurationMs  int64  `json:"durationMs"`
	IsLoop      bool   `json:"isLoop"`
}

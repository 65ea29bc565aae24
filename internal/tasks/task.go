// Package tasks defines the Task entity, its state machine and the
// in-memory priority queue the Assigner selects from.
package tasks

import (
	"fmt"
	"time"

	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/stringutils"
	"github.com/google/uuid"
)

// Status is a position in the task state machine.
type Status string

const (
	StatusPending     Status = "pending"
	StatusAssigned    Status = "assigned"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusAborted     Status = "aborted"
	StatusNeedsHuman  Status = "needs_human"
)

// Type is the kind of work a task represents.
type Type string

const (
	TypeCode     Type = "code"
	TypeTest     Type = "test"
	TypeReview   Type = "review"
	TypeDebug    Type = "debug"
	TypeRefactor Type = "refactor"
)

// ComplexitySource records how Complexity was last set.
type ComplexitySource string

const (
	ComplexitySourceRouter ComplexitySource = "router"
	ComplexitySourceHaiku  ComplexitySource = "haiku"
	ComplexitySourceDual   ComplexitySource = "dual"
	ComplexitySourceActual ComplexitySource = "actual"
)

// validTransitions enumerates the edges of the task state machine,
// including the retry edge (in_progress -> assigned) and the
// human-escalation edges (assigned <-> needs_human).
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusAssigned},
	StatusAssigned:   {StatusInProgress, StatusNeedsHuman},
	StatusInProgress: {StatusCompleted, StatusAssigned, StatusAborted, StatusNeedsHuman},
	StatusNeedsHuman: {StatusAssigned, StatusAborted},
	StatusCompleted:  {StatusPending}, // review-escalation re-queue
	StatusAborted:    {},
}

// CanTransition reports whether moving from from to to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Task is the unit of work the engine routes, assigns and executes.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	TaskType    Type   `json:"taskType"`

	Priority         int      `json:"priority"` // 1-10, 10 highest
	MaxIterations    int      `json:"maxIterations"`
	CurrentIteration int      `json:"currentIteration"`
	LockedFiles      []string `json:"lockedFiles"`
	ValidationCmd    string   `json:"validationCommand,omitempty"`
	Language         string   `json:"language,omitempty"`
	RequiredAgent    string   `json:"requiredAgent,omitempty"`
	PreferredModel   string   `json:"preferredModel,omitempty"`
	MissionID        string   `json:"missionId,omitempty"`

	Complexity          float64          `json:"complexity"`
	ComplexitySource    ComplexitySource `json:"complexitySource"`
	ComplexityReasoning string           `json:"complexityReasoning,omitempty"`

	AssignedAgentID string     `json:"assignedAgentId,omitempty"`
	AssignedAt      *time.Time `json:"assignedAt,omitempty"`
	Status          Status     `json:"status"`
	Error           string     `json:"error,omitempty"`
	ErrorCategory   string     `json:"errorCategory,omitempty"`
	Result          any        `json:"result,omitempty"`
	NeedsHumanReview bool      `json:"needsHumanReview,omitempty"`
	ReviewFindings  any        `json:"reviewFindings,omitempty"`

	APICreditsUsed float64 `json:"apiCreditsUsed"`
	TimeSpentMs    int64   `json:"timeSpentMs"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// New builds a Task with generated id, timestamps and the default
// maxIterations=3, status=pending.
func New(title, description string, taskType Type, priority int) *Task {
	now := time.Now()
	return &Task{
		ID:            uuid.NewString(),
		Title:         title,
		Description:   description,
		TaskType:      taskType,
		Priority:      priority,
		MaxIterations: 3,
		LockedFiles:   []string{},
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Validate checks the invariants a Task must satisfy to be accepted.
func (t *Task) Validate() error {
	var details []apperr.FieldError
	if stringutils.IsEmpty(t.Title) {
		details = append(details, apperr.FieldError{Field: "title", Message: "is required"})
	}
	if t.Priority < 1 || t.Priority > 10 {
		details = append(details, apperr.FieldError{Field: "priority", Message: "must be between 1 and 10"})
	}
	if t.MaxIterations < 1 {
		details = append(details, apperr.FieldError{Field: "maxIterations", Message: "must be at least 1"})
	}
	switch t.TaskType {
	case TypeCode, TypeTest, TypeReview, TypeDebug, TypeRefactor, "":
	default:
		details = append(details, apperr.FieldError{Field: "taskType", Message: fmt.Sprintf("unknown type %q", t.TaskType)})
	}
	if len(details) > 0 {
		return apperr.Validationf(details, "task validation failed")
	}
	return nil
}

// TransitionTo moves the task to a new status if the edge is legal,
// stamping UpdatedAt and CompletedAt.
func (t *Task) TransitionTo(to Status) error {
	if !CanTransition(t.Status, to) {
		return apperr.Conflictf("cannot transition task %s from %s to %s", t.ID, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	if to == StatusCompleted {
		now := time.Now()
		t.CompletedAt = &now
	}
	if to == StatusAssigned || to == StatusInProgress || to == StatusNeedsHuman {
		// invariant 1: assignedAgentId is non-null exactly while in these states;
		// callers set AssignedAgentID themselves before/with this call.
	}
	return nil
}

// HasLockConflict reports whether any of t's declared LockedFiles appears
// in lockedPaths (the current set of held file locks).
func (t *Task) HasLockConflict(lockedPaths map[string]bool) bool {
	for _, p := range t.LockedFiles {
		if lockedPaths[p] {
			return true
		}
	}
	return false
}

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/tasks"
)

// SaveTask upserts a task row with ON CONFLICT DO UPDATE, keyed on id.
func (db *DB) SaveTask(t *tasks.Task) error {
	lockedFiles, err := json.Marshal(t.LockedFiles)
	if err != nil {
		return fmt.Errorf("marshaling lockedFiles: %w", err)
	}
	result, err := marshalAny(t.Result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	findings, err := marshalAny(t.ReviewFindings)
	if err != nil {
		return fmt.Errorf("marshaling reviewFindings: %w", err)
	}

	var assignedAt, completedAt any
	if t.AssignedAt != nil {
		assignedAt = *t.AssignedAt
	}
	if t.CompletedAt != nil {
		completedAt = *t.CompletedAt
	}

	const q = `
INSERT INTO tasks (
	id, title, description, task_type, priority, max_iterations, current_iteration,
	locked_files, validation_command, language, required_agent, preferred_model, mission_id,
	complexity, complexity_source, complexity_reasoning,
	assigned_agent_id, assigned_at, status, error, error_category, result,
	needs_human_review, review_findings, api_credits_used, time_spent_ms,
	created_at, updated_at, completed_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
	title=excluded.title, description=excluded.description, task_type=excluded.task_type,
	priority=excluded.priority, max_iterations=excluded.max_iterations,
	current_iteration=excluded.current_iteration, locked_files=excluded.locked_files,
	validation_command=excluded.validation_command, language=excluded.language,
	required_agent=excluded.required_agent, preferred_model=excluded.preferred_model,
	mission_id=excluded.mission_id, complexity=excluded.complexity,
	complexity_source=excluded.complexity_source, complexity_reasoning=excluded.complexity_reasoning,
	assigned_agent_id=excluded.assigned_agent_id, assigned_at=excluded.assigned_at,
	status=excluded.status, error=excluded.error, error_category=excluded.error_category,
	result=excluded.result, needs_human_review=excluded.needs_human_review,
	review_findings=excluded.review_findings, api_credits_used=excluded.api_credits_used,
	time_spent_ms=excluded.time_spent_ms, updated_at=excluded.updated_at,
	completed_at=excluded.completed_at
`
	_, err = db.conn.Exec(q,
		t.ID, t.Title, t.Description, string(t.TaskType), t.Priority, t.MaxIterations, t.CurrentIteration,
		string(lockedFiles), nullString(t.ValidationCmd), nullString(t.Language), nullString(t.RequiredAgent),
		nullString(t.PreferredModel), nullString(t.MissionID),
		t.Complexity, string(t.ComplexitySource), nullString(t.ComplexityReasoning),
		nullString(t.AssignedAgentID), assignedAt, string(t.Status), nullString(t.Error), nullString(t.ErrorCategory),
		string(result), t.NeedsHumanReview, string(findings), t.APICreditsUsed, t.TimeSpentMs,
		t.CreatedAt, t.UpdatedAt, completedAt,
	)
	if err != nil {
		return fmt.Errorf("saving task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask loads one task by id.
func (db *DB) GetTask(id string) (*tasks.Task, error) {
	row := db.conn.QueryRow(taskSelectColumns()+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("task %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}
	return t, nil
}

// ListTasksByStatus returns every task with the given status.
func (db *DB) ListTasksByStatus(status tasks.Status) ([]*tasks.Task, error) {
	rows, err := db.conn.Query(taskSelectColumns()+" FROM tasks WHERE status = ? ORDER BY priority DESC, created_at ASC", string(status))
	if err != nil {
		return nil, fmt.Errorf("listing tasks by status %s: %w", status, err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListAllTasks returns every task, most-recently-created first.
func (db *DB) ListAllTasks() ([]*tasks.Task, error) {
	rows, err := db.conn.Query(taskSelectColumns() + " FROM tasks ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// DeleteTask removes a task row (explicit admin delete).
func (db *DB) DeleteTask(id string) error {
	res, err := db.conn.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.NotFoundf("task %s not found", id)
	}
	return nil
}

func taskSelectColumns() string {
	return `SELECT
	id, title, description, task_type, priority, max_iterations, current_iteration,
	locked_files, validation_command, language, required_agent, preferred_model, mission_id,
	complexity, complexity_source, complexity_reasoning,
	assigned_agent_id, assigned_at, status, error, error_category, result,
	needs_human_review, review_findings, api_credits_used, time_spent_ms,
	created_at, updated_at, completed_at`
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTask(row scannable) (*tasks.Task, error) {
	var t tasks.Task
	var lockedFiles, result, findings string
	var validationCmd, language, requiredAgent, preferredModel, missionID sql.NullString
	var complexityReasoning, assignedAgentID, errStr, errCategory sql.NullString
	var assignedAt, completedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.TaskType, &t.Priority, &t.MaxIterations, &t.CurrentIteration,
		&lockedFiles, &validationCmd, &language, &requiredAgent, &preferredModel, &missionID,
		&t.Complexity, &t.ComplexitySource, &complexityReasoning,
		&assignedAgentID, &assignedAt, &t.Status, &errStr, &errCategory, &result,
		&t.NeedsHumanReview, &findings, &t.APICreditsUsed, &t.TimeSpentMs,
		&t.CreatedAt, &t.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ValidationCmd = stringOrEmpty(validationCmd)
	t.Language = stringOrEmpty(language)
	t.RequiredAgent = stringOrEmpty(requiredAgent)
	t.PreferredModel = stringOrEmpty(preferredModel)
	t.MissionID = stringOrEmpty(missionID)
	t.ComplexityReasoning = stringOrEmpty(complexityReasoning)
	t.AssignedAgentID = stringOrEmpty(assignedAgentID)
	t.Error = stringOrEmpty(errStr)
	t.ErrorCategory = stringOrEmpty(errCategory)

	if assignedAt.Valid {
		t.AssignedAt = &assignedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}

	if lockedFiles != "" {
		if err := json.Unmarshal([]byte(lockedFiles), &t.LockedFiles); err != nil {
			return nil, fmt.Errorf("decoding lockedFiles: %w", err)
		}
	}
	if result != "" {
		if err := json.Unmarshal([]byte(result), &t.Result); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
	}
	if findings != "" {
		if err := json.Unmarshal([]byte(findings), &t.ReviewFindings); err != nil {
			return nil, fmt.Errorf("decoding reviewFindings: %w", err)
		}
	}

	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*tasks.Task, error) {
	var out []*tasks.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func marshalAny(v any) ([]byte, error) {
	if v == nil {
		return []byte{}, nil
	}
	return json.Marshal(v)
}

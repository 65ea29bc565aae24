package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/executor"
)

// SaveExecution upserts a TaskExecution row.
func (db *DB) SaveExecution(e *executor.TaskExecution) error {
	metrics, err := marshalAny(e.Metrics)
	if err != nil {
		return fmt.Errorf("marshaling execution metrics: %w", err)
	}
	var completedAt any
	if e.CompletedAt != nil {
		completedAt = *e.CompletedAt
	}

	const q = `
INSERT INTO task_executions (id, task_id, agent_id, iteration, status, started_at, completed_at, metrics, input, output, error)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
	status=excluded.status, completed_at=excluded.completed_at, metrics=excluded.metrics,
	output=excluded.output, error=excluded.error
`
	_, err = db.conn.Exec(q, e.ID, e.TaskID, e.AgentID, e.Iteration, string(e.Status),
		e.StartedAt, completedAt, string(metrics), nullString(e.Input), nullString(e.Output), nullString(e.Error))
	if err != nil {
		return fmt.Errorf("saving execution %s: %w", e.ID, err)
	}
	return nil
}

// GetExecution loads one execution by id.
func (db *DB) GetExecution(id string) (*executor.TaskExecution, error) {
	row := db.conn.QueryRow(`SELECT id, task_id, agent_id, iteration, status, started_at, completed_at, metrics, input, output, error
		FROM task_executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("execution %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListExecutionsByTask returns every attempt recorded for taskID, in
// iteration order.
func (db *DB) ListExecutionsByTask(taskID string) ([]*executor.TaskExecution, error) {
	rows, err := db.conn.Query(`SELECT id, task_id, agent_id, iteration, status, started_at, completed_at, metrics, input, output, error
		FROM task_executions WHERE task_id = ? ORDER BY iteration ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing executions for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []*executor.TaskExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(row scannable) (*executor.TaskExecution, error) {
	var e executor.TaskExecution
	var metrics string
	var input, output, errStr sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&e.ID, &e.TaskID, &e.AgentID, &e.Iteration, &e.Status, &e.StartedAt, &completedAt,
		&metrics, &input, &output, &errStr)
	if err != nil {
		return nil, err
	}
	e.Input = stringOrEmpty(input)
	e.Output = stringOrEmpty(output)
	e.Error = stringOrEmpty(errStr)
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	if metrics != "" {
		if err := json.Unmarshal([]byte(metrics), &e.Metrics); err != nil {
			return nil, fmt.Errorf("decoding execution metrics: %w", err)
		}
	}
	return &e, nil
}

// SaveExecutionLog appends one ExecutionLog row (never mutated after
// insert).
func (db *DB) SaveExecutionLog(l *executor.ExecutionLog) error {
	const q = `
INSERT INTO execution_logs (id, execution_id, step_index, thought, action, input, observation, duration_ms, is_loop)
VALUES (?,?,?,?,?,?,?,?,?)
`
	_, err := db.conn.Exec(q, l.ID, l.ExecutionID, l.StepIndex, nullString(l.Thought), nullString(l.Action),
		nullString(l.Input), nullString(l.Observation), l.DurationMs, l.IsLoop)
	if err != nil {
		return fmt.Errorf("saving execution log %s: %w", l.ID, err)
	}
	return nil
}

// ListExecutionLogs returns every step recorded for executionID, in order.
func (db *DB) ListExecutionLogs(executionID string) ([]*executor.ExecutionLog, error) {
	rows, err := db.conn.Query(`SELECT id, execution_id, step_index, thought, action, input, observation, duration_ms, is_loop
		FROM execution_logs WHERE execution_id = ? ORDER BY step_index ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("listing execution logs for %s: %w", executionID, err)
	}
	defer rows.Close()

	var out []*executor.ExecutionLog
	for rows.Next() {
		var l executor.ExecutionLog
		var thought, action, input, observation sql.NullString
		if err := rows.Scan(&l.ID, &l.ExecutionID, &l.StepIndex, &thought, &action, &input, &observation, &l.DurationMs, &l.IsLoop); err != nil {
			return nil, err
		}
		l.Thought = stringOrEmpty(thought)
		l.Action = stringOrEmpty(action)
		l.Input = stringOrEmpty(input)
		l.Observation = stringOrEmpty(observation)
		out = append(out, &l)
	}
	return out, rows.Err()
}

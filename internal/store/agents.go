package store

import (
	"database/sql"
	"fmt"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/apperr"
)

// SaveAgent upserts an agent row.
func (db *DB) SaveAgent(a *agents.Agent) error {
	const q = `
INSERT INTO agents (
	id, name, agent_type, status, current_task_id,
	completed, failed, success_rate, total_api_credits, total_time_ms,
	preferred_model, always_use_hosted, max_context_tokens, last_seen, pid
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
	name=excluded.name, agent_type=excluded.agent_type, status=excluded.status,
	current_task_id=excluded.current_task_id, completed=excluded.completed, failed=excluded.failed,
	success_rate=excluded.success_rate, total_api_credits=excluded.total_api_credits,
	total_time_ms=excluded.total_time_ms, preferred_model=excluded.preferred_model,
	always_use_hosted=excluded.always_use_hosted, max_context_tokens=excluded.max_context_tokens,
	last_seen=excluded.last_seen, pid=excluded.pid
`
	_, err := db.conn.Exec(q,
		a.ID, a.Name, string(a.AgentType), string(a.Status), nullString(a.CurrentTaskID),
		a.Stats.Completed, a.Stats.Failed, a.Stats.SuccessRate, a.Stats.TotalAPICredits, a.Stats.TotalTimeMs,
		nullString(a.Config.PreferredModel), a.Config.AlwaysUseHosted, a.Config.MaxContextTokens, a.LastSeen, a.PID,
	)
	if err != nil {
		return fmt.Errorf("saving agent %s: %w", a.ID, err)
	}
	return nil
}

// GetAgent loads one agent by id.
func (db *DB) GetAgent(id string) (*agents.Agent, error) {
	row := db.conn.QueryRow(agentSelectColumns()+" FROM agents WHERE id = ?", id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("agent %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading agent %s: %w", id, err)
	}
	return a, nil
}

// ListAgents returns every agent.
func (db *DB) ListAgents() ([]*agents.Agent, error) {
	rows, err := db.conn.Query(agentSelectColumns() + " FROM agents ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var out []*agents.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func agentSelectColumns() string {
	return `SELECT
	id, name, agent_type, status, current_task_id,
	completed, failed, success_rate, total_api_credits, total_time_ms,
	preferred_model, always_use_hosted, max_context_tokens, last_seen, pid`
}

func scanAgent(row scannable) (*agents.Agent, error) {
	var a agents.Agent
	var currentTaskID, preferredModel sql.NullString
	var pid sql.NullInt64

	err := row.Scan(
		&a.ID, &a.Name, &a.AgentType, &a.Status, &currentTaskID,
		&a.Stats.Completed, &a.Stats.Failed, &a.Stats.SuccessRate, &a.Stats.TotalAPICredits, &a.Stats.TotalTimeMs,
		&preferredModel, &a.Config.AlwaysUseHosted, &a.Config.MaxContextTokens, &a.LastSeen, &pid,
	)
	if err != nil {
		return nil, err
	}
	a.CurrentTaskID = stringOrEmpty(currentTaskID)
	a.Config.PreferredModel = stringOrEmpty(preferredModel)
	a.PID = int(pid.Int64)
	return &a, nil
}

package store

import (
	"database/sql"
	"fmt"

	"github.com/agentctl/engine/internal/locks"
)

// UpsertLock inserts or replaces a FileLock row, keyed on file_path (the
// table's UNIQUE constraint). Safe to call repeatedly for the
// same path/task; the File Lock Manager is responsible for the
// no-op-on-conflict decision before calling this.
func (db *DB) UpsertLock(l locks.FileLock) error {
	const q = `
INSERT INTO file_locks (file_path, agent_id, task_id, locked_at, expires_at)
VALUES (?,?,?,?,?)
ON CONFLICT(file_path) DO UPDATE SET
	agent_id=excluded.agent_id, task_id=excluded.task_id,
	locked_at=excluded.locked_at, expires_at=excluded.expires_at
`
	var expiresAt any
	if l.ExpiresAt != nil {
		expiresAt = *l.ExpiresAt
	}
	if _, err := db.conn.Exec(q, l.FilePath, l.AgentID, l.TaskID, l.LockedAt, expiresAt); err != nil {
		return fmt.Errorf("upserting lock on %s: %w", l.FilePath, err)
	}
	return nil
}

// DeleteLocksByTask removes every lock held by taskID.
func (db *DB) DeleteLocksByTask(taskID string) error {
	if _, err := db.conn.Exec("DELETE FROM file_locks WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("releasing locks for task %s: %w", taskID, err)
	}
	return nil
}

// DeleteLockByPath removes a single lock, for the emergency-release
// endpoint (DELETE /queue/locks/{path}).
func (db *DB) DeleteLockByPath(path string) error {
	if _, err := db.conn.Exec("DELETE FROM file_locks WHERE file_path = ?", path); err != nil {
		return fmt.Errorf("releasing lock on %s: %w", path, err)
	}
	return nil
}

// ListAllLocks returns every lock row, expired or not; the File Lock
// Manager filters by expiry (expiration is treated as absence, not as a
// row deletion — no background sweep needed for correctness).
func (db *DB) ListAllLocks() ([]locks.FileLock, error) {
	rows, err := db.conn.Query("SELECT file_path, agent_id, task_id, locked_at, expires_at FROM file_locks")
	if err != nil {
		return nil, fmt.Errorf("listing locks: %w", err)
	}
	defer rows.Close()

	var out []locks.FileLock
	for rows.Next() {
		var l locks.FileLock
		var expiresAt sql.NullTime
		if err := rows.Scan(&l.FilePath, &l.AgentID, &l.TaskID, &l.LockedAt, &expiresAt); err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			l.ExpiresAt = &expiresAt.Time
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

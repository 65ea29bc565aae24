// Package locks implements the File Lock Manager: mutual exclusion over
// file paths tasks declare they will modify, persisted via the relational
// store so at most one writer ever holds a given path.
package locks

import (
	"time"
)

// DefaultTTL is how long a lock survives without being explicitly
// released.
const DefaultTTL = 30 * time.Minute

// FileLock is an exclusive claim on a filesystem path.
type FileLock struct {
	FilePath  string     `json:"filePath"`
	AgentID   string     `json:"agentId"`
	TaskID    string     `json:"taskId"`
	LockedAt  time.Time  `json:"lockedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the lock is no longer active as of now.
func (l FileLock) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// Store is the persistence interface the Manager needs; internal/store.DB
// satisfies it.
type Store interface {
	UpsertLock(l FileLock) error
	DeleteLocksByTask(taskID string) error
	DeleteLockByPath(path string) error
	ListAllLocks() ([]FileLock, error)
}

// Manager is the File Lock Manager.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager creates a Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// LockFiles upserts one entry per path with expiresAt = now + 30min. If a
// path is already locked by a *different*, non-expired task, the upsert is
// a no-op for that path — the decision to abort the
// assignment that triggered this call belongs to the Assigner, one layer
// up; this method only reports which paths it could not acquire.
func (m *Manager) LockFiles(taskID, agentID string, paths []string) (acquired []string, conflicted []string, err error) {
	if len(paths) == 0 {
		return nil, nil, nil
	}

	now := m.now()
	active, err := m.activeLocksByPath()
	if err != nil {
		return nil, nil, err
	}

	expiresAt := now.Add(DefaultTTL)
	for _, p := range paths {
		if existing, held := active[p]; held && existing.TaskID != taskID {
			conflicted = append(conflicted, p)
			continue
		}
		lock := FileLock{
			FilePath:  p,
			AgentID:   agentID,
			TaskID:    taskID,
			LockedAt:  now,
			ExpiresAt: &expiresAt,
		}
		if err := m.store.UpsertLock(lock); err != nil {
			return acquired, conflicted, err
		}
		acquired = append(acquired, p)
	}
	return acquired, conflicted, nil
}

// ReleaseFileLocks deletes every lock held by taskID.
func (m *Manager) ReleaseFileLocks(taskID string) error {
	return m.store.DeleteLocksByTask(taskID)
}

// ReleasePath is the emergency-release admin operation (DELETE
// /queue/locks/{path}).
func (m *Manager) ReleasePath(path string) error {
	return m.store.DeleteLockByPath(path)
}

// GetLockedFiles returns every path whose lock has not expired.
func (m *Manager) GetLockedFiles() ([]FileLock, error) {
	all, err := m.store.ListAllLocks()
	if err != nil {
		return nil, err
	}
	now := m.now()
	out := make([]FileLock, 0, len(all))
	for _, l := range all {
		if !l.Expired(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

// LockedPathSet is a convenience wrapper returning the active lock set as a
// map for O(1) conflict lookups (the shape tasks.Task.HasLockConflict
// wants).
func (m *Manager) LockedPathSet() (map[string]bool, error) {
	active, err := m.activeLocksByPath()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(active))
	for p := range active {
		out[p] = true
	}
	return out, nil
}

func (m *Manager) activeLocksByPath() (map[string]FileLock, error) {
	locked, err := m.GetLockedFiles()
	if err != nil {
		return nil, err
	}
	out := make(map[string]FileLock, len(locked))
	for _, l := range locked {
		out[l.FilePath] = l
	}
	return out, nil
}

package tasks

import (
	"sort"
	"sync"

	"github.com/agentctl/engine/internal/apperr"
)

// Queue is a thread-safe, priority-ordered holding area for tasks. It is
// the in-memory mirror of the tasks table's pending/active rows; the
// Assigner reads from it to pick candidates and writes through it whenever
// a task's state changes.
type Queue struct {
	mu    sync.RWMutex
	tasks []*Task
	index map[string]int // id -> position in tasks
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{index: make(map[string]int)}
}

// Add inserts a task and re-sorts.
func (q *Queue) Add(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	q.sortLocked()
}

// sortLocked orders by (priority DESC, createdAt ASC) — 10 is
// the highest priority, ties broken oldest-first (FIFO).
func (q *Queue) sortLocked() {
	sort.SliceStable(q.tasks, func(i, j int) bool {
		a, b := q.tasks[i], q.tasks[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	q.index = make(map[string]int, len(q.tasks))
	for i, t := range q.tasks {
		q.index[t.ID] = i
	}
}

// GetByID returns the task with the given id, or NotFound.
func (q *Queue) GetByID(id string) (*Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if i, ok := q.index[id]; ok {
		return q.tasks[i], nil
	}
	return nil, apperr.NotFoundf("task %s not found", id)
}

// Remove deletes the task with the given id, if present.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i, ok := q.index[id]
	if !ok {
		return
	}
	q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
	q.sortLocked()
}

// Update re-sorts after an in-place mutation of a task already in the
// queue (e.g. priority or status changed).
func (q *Queue) Update(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[t.ID]; !ok {
		q.tasks = append(q.tasks, t)
	}
	q.sortLocked()
}

// GetByStatus returns every task currently in the given status, in queue
// order.
func (q *Queue) GetByStatus(status Status) []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []*Task
	for _, t := range q.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// GetByAgent returns the task currently assigned to agentID, if any.
func (q *Queue) GetByAgent(agentID string) *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, t := range q.tasks {
		if t.AssignedAgentID == agentID && !t.Status.IsTerminal() {
			return t
		}
	}
	return nil
}

// Len returns the number of tasks held.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// All returns a snapshot copy of every task in queue order.
func (q *Queue) All() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// PendingInOrder returns every pending task in selection order
// (priority DESC, createdAt ASC), regardless of requiredAgent — used by
// the Assigner's fan-out path, which routes each candidate itself.
func (q *Queue) PendingInOrder() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []*Task
	for _, t := range q.tasks {
		if t.Status == StatusPending {
			out = append(out, t)
		}
	}
	return out
}

// PendingCandidates returns every pending task matching requiredAgentType
// (or with no requiredAgent at all), in selection order, excluding any id
// in exclude.
func (q *Queue) PendingCandidates(requiredAgentType string, exclude map[string]bool) []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []*Task
	for _, t := range q.tasks {
		if t.Status != StatusPending {
			continue
		}
		if exclude[t.ID] {
			continue
		}
		if t.RequiredAgent != "" && t.RequiredAgent != requiredAgentType {
			continue
		}
		out = append(out, t)
	}
	return out
}

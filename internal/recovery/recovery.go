// Package recovery implements Stuck-Task Recovery: a periodic sweeper
// that reclaims tasks whose agent has gone silent mid-attempt, so a
// crashed or hung agent process never permanently strands a task in
// in_progress.
package recovery

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/events"
	"github.com/agentctl/engine/internal/executor"
	"github.com/agentctl/engine/internal/locks"
	"github.com/agentctl/engine/internal/resources"
	"github.com/agentctl/engine/internal/tasks"
)

// DefaultCheckInterval and DefaultStuckTimeout are the documented
// defaults (config STUCK_TASK_CHECK_INTERVAL_MS / STUCK_TASK_TIMEOUT_MS).
const (
	DefaultCheckInterval = 60 * time.Second
	DefaultStuckTimeout  = 10 * time.Minute
)

// Store is the persistence surface the sweeper needs.
type Store interface {
	SaveTask(t *tasks.Task) error
	SaveAgent(a *agents.Agent) error
	GetExecution(id string) (*executor.TaskExecution, error)
	SaveExecution(e *executor.TaskExecution) error
}

// Publisher is the cross-process half of the Event Bridge.
type Publisher interface {
	Publish(evt events.Event) error
}

// Sweeper is the Stuck-Task Recovery loop. A sweep reclaims only tasks it
// finds in_progress past Timeout (with their agent, file locks and resource
// slot), and SweepStaleAgents marks agents whose process has exited
// offline — a re-sweep of a task already moved to a terminal state is a
// no-op.
type Sweeper struct {
	queue    *tasks.Queue
	registry *agents.Registry
	locks    *locks.Manager
	pool     *resources.Pool
	store    Store
	bus      *events.Bus
	external Publisher

	CheckInterval time.Duration
	Timeout       time.Duration

	now func() time.Time
}

// New builds a Sweeper with the documented defaults. Override
// CheckInterval/Timeout on the returned value before calling Run/SweepOnce
// if config names non-default values.
func New(queue *tasks.Queue, registry *agents.Registry, lockMgr *locks.Manager, pool *resources.Pool, store Store, bus *events.Bus, external Publisher) *Sweeper {
	return &Sweeper{
		queue: queue, registry: registry, locks: lockMgr, pool: pool, store: store, bus: bus, external: external,
		CheckInterval: DefaultCheckInterval,
		Timeout:       DefaultStuckTimeout,
		now:           time.Now,
	}
}

// Run blocks, sweeping every CheckInterval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.CheckInterval)
	defer ticker.Stop()

	log.Println("[RECOVERY] stuck-task sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[RECOVERY] stuck-task sweeper stopped")
			return
		case <-ticker.C:
			if n := s.SweepOnce(); n > 0 {
				log.Printf("[RECOVERY] reclaimed %d stuck task(s)", n)
			}
			if n := s.SweepStaleAgents(); n > 0 {
				log.Printf("[RECOVERY] marked %d agent(s) offline", n)
			}
		}
	}
}

// SweepOnce runs one pass of the reclaim procedure and returns
// how many tasks it reclaimed.
func (s *Sweeper) SweepOnce() int {
	now := s.now()
	reclaimed := 0
	for _, t := range s.queue.GetByStatus(tasks.StatusInProgress) {
		if t.AssignedAt == nil || now.Sub(*t.AssignedAt) < s.Timeout {
			continue
		}
		if err := s.reclaim(t, now); err != nil {
			log.Printf("[RECOVERY] failed to reclaim task %s: %v", t.ID, err)
			continue
		}
		reclaimed++
	}
	return reclaimed
}

// reclaim implements the reclaim steps for a single stuck task.
// Idempotent: if t has already left in_progress (a concurrent sweep or a
// late completion won the race), TransitionTo rejects the edge and this
// is a no-op.
func (s *Sweeper) reclaim(t *tasks.Task, now time.Time) error {
	s.locks.ReleaseFileLocks(t.ID)
	s.pool.Release(t.ID)

	minutes := int(s.Timeout / time.Minute)
	if err := t.TransitionTo(tasks.StatusAborted); err != nil {
		return nil // already moved on; nothing to reclaim
	}
	t.Error = timeoutMessage(minutes)
	t.ErrorCategory = "timeout"
	if err := s.store.SaveTask(t); err != nil {
		return err
	}
	s.queue.Update(t)

	execID := t.ID + ":" + strconv.Itoa(t.CurrentIteration)
	if exec, err := s.store.GetExecution(execID); err == nil {
		exec.Status = executor.ExecutionFailed
		exec.Error = t.Error
		exec.CompletedAt = &now
		s.store.SaveExecution(exec)
	}

	if agent, err := s.registry.Get(t.AssignedAgentID); err == nil {
		agent.RecordFailure()
		agent.MarkIdle()
		if err := s.store.SaveAgent(agent); err != nil {
			log.Printf("[RECOVERY] failed to persist agent %s after reclaim: %v", agent.ID, err)
		}
		s.registry.Put(agent)
		s.bus.Publish(events.New(events.AgentStatusChanged, map[string]any{"agent": agent}))
	}

	s.bus.Publish(events.New(events.TaskFailed, map[string]any{"task": t}))
	s.bus.Publish(events.New(events.Alert, map[string]any{"severity": "warning", "taskId": t.ID, "message": t.Error}))
	if s.external != nil {
		if err := s.external.Publish(events.New(events.TaskFailed, map[string]any{"taskId": t.ID})); err != nil {
			log.Printf("[RECOVERY] external publish for task %s failed: %v", t.ID, err)
		}
	}

	return nil
}

func timeoutMessage(minutes int) string {
	if minutes == 1 {
		return "Task timed out after 1 minute"
	}
	return "Task timed out after " + strconv.Itoa(minutes) + " minutes"
}

// Package assigner implements the Task Assigner: the sole writer of the
// pending -> assigned transition, coordinating the task queue, agent
// registry, file lock manager, resource pool and event bridge so that
// lock acquisition, resource acquisition and the state change happen as
// one logical unit.
package assigner

import (
	"log"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/events"
	"github.com/agentctl/engine/internal/locks"
	"github.com/agentctl/engine/internal/resources"
	"github.com/agentctl/engine/internal/router"
	"github.com/agentctl/engine/internal/tasks"
)

// Store is the persistence surface the Assigner needs for the task/agent
// rows it writes; internal/store.DB satisfies it.
type Store interface {
	SaveTask(t *tasks.Task) error
	SaveAgent(a *agents.Agent) error
}

// Publisher is the external (cross-process) half of the Event Bridge;
// internal/bus satisfies it. Publish is fire-and-forget: failures are
// locally recovered, never propagated.
type Publisher interface {
	Publish(evt events.Event) error
}

// Assigner is the Task Assigner.
type Assigner struct {
	queue    *tasks.Queue
	registry *agents.Registry
	locks    *locks.Manager
	pool     *resources.Pool
	router   *router.Router
	store    Store
	bus      *events.Bus
	external Publisher
}

// New creates an Assigner wired to its collaborators. external may be nil
// to disable cross-process publication (e.g. in tests).
func New(queue *tasks.Queue, registry *agents.Registry, lockMgr *locks.Manager, pool *resources.Pool, r *router.Router, store Store, bus *events.Bus, external Publisher) *Assigner {
	return &Assigner{
		queue: queue, registry: registry, locks: lockMgr, pool: pool, router: r,
		store: store, bus: bus, external: external,
	}
}

// AssignNextTask implements `assignNextTask(agentId)`: it
// picks the best pending task for agentID and assigns it, skipping a
// file-lock conflict in favor of the next best candidate. Returns
// (nil, nil) when there is nothing assignable right now.
func (a *Assigner) AssignNextTask(agentID string) (*tasks.Task, error) {
	agent, err := a.registry.Get(agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != agents.StatusIdle {
		return nil, nil
	}

	lockedPaths, err := a.locks.LockedPathSet()
	if err != nil {
		return nil, err
	}

	candidates := a.queue.PendingCandidates(string(agent.AgentType), nil)
	var chosen *tasks.Task
	for _, c := range candidates {
		if !c.HasLockConflict(lockedPaths) {
			chosen = c
			break
		}
	}
	if chosen == nil {
		return nil, nil
	}

	if err := a.AssignTask(chosen.ID, agentID); err != nil {
		return nil, err
	}
	return chosen, nil
}

// AssignTask implements `assignTask(taskId, agentId)`
// contract: lock acquisition, the task/agent row updates, and event
// emission happen as one logical unit. On any failure, locks acquired in
// step 1 are released and no events are emitted.
func (a *Assigner) AssignTask(taskID, agentID string) error {
	task, err := a.queue.GetByID(taskID)
	if err != nil {
		return err
	}
	agent, err := a.registry.Get(agentID)
	if err != nil {
		return err
	}
	if agent.Status != agents.StatusIdle {
		return apperr.Conflictf("agent %s is not idle", agentID)
	}
	if task.Status != tasks.StatusPending && task.Status != tasks.StatusNeedsHuman {
		return apperr.Conflictf("task %s is not assignable from status %s", taskID, task.Status)
	}

	acquired, conflicted, err := a.locks.LockFiles(taskID, agentID, task.LockedFiles)
	if err != nil {
		return err
	}
	if len(conflicted) > 0 {
		a.locks.ReleaseFileLocks(taskID)
		return apperr.Conflictf("task %s: file lock conflict on %v", taskID, conflicted)
	}

	if err := task.TransitionTo(tasks.StatusAssigned); err != nil {
		a.rollbackLocks(taskID, acquired)
		return err
	}
	task.AssignedAgentID = agentID
	now := task.UpdatedAt
	task.AssignedAt = &now

	if err := a.store.SaveTask(task); err != nil {
		a.rollbackLocks(taskID, acquired)
		return apperr.Wrap(apperr.Internal, err, "persisting task %s assignment", taskID)
	}

	agent.MarkBusy(taskID)
	if err := a.store.SaveAgent(agent); err != nil {
		a.rollbackLocks(taskID, acquired)
		return apperr.Wrap(apperr.Internal, err, "persisting agent %s assignment", agentID)
	}

	a.queue.Update(task)
	a.registry.Put(agent)

	a.bus.Publish(events.New(events.TaskUpdated, map[string]any{"task": task}))
	a.bus.Publish(events.New(events.AgentStatusChanged, map[string]any{"agent": agent}))
	a.publishExternal(events.New(events.TaskAssigned, map[string]any{"taskId": taskID, "agentId": agentID}))

	return nil
}

func (a *Assigner) rollbackLocks(taskID string, acquired []string) {
	if len(acquired) == 0 {
		return
	}
	a.locks.ReleaseFileLocks(taskID)
}

func (a *Assigner) publishExternal(evt events.Event) {
	if a.external == nil {
		return
	}
	if err := a.external.Publish(evt); err != nil && !apperr.Recoverable(err) {
		// publication failures are always locally recovered;
		// this branch only distinguishes unexpected Kinds for logging.
		log.Printf("[ASSIGNER] external publish of %s failed: %v", evt.Type, err)
	}
}

// ParallelAssign implements the fan-out path: walk candidates by
// priority, route each to a tier/resource/agentType, and commit the
// first candidate whose resource and agent are both available. Returns
// (nil, nil) when no candidate could be assigned.
func (a *Assigner) ParallelAssign() (*tasks.Task, error) {
	lockedPaths, err := a.locks.LockedPathSet()
	if err != nil {
		return nil, err
	}

	for _, candidate := range a.queue.PendingInOrder() {
		if candidate.HasLockConflict(lockedPaths) {
			continue
		}

		route, err := a.router.Route(candidate)
		if err != nil {
			continue
		}
		resourceType := a.pool.GetResourceForComplexity(route.Complexity)
		if !a.pool.CanAcquire(resourceType) {
			continue
		}
		agent := a.registry.IdleOfType(route.AgentType)
		if agent == nil {
			continue
		}

		if !a.pool.Acquire(resourceType, candidate.ID) {
			continue
		}
		if err := a.AssignTask(candidate.ID, agent.ID); err != nil {
			a.pool.Release(candidate.ID)
			continue
		}
		return candidate, nil
	}
	return nil, nil
}

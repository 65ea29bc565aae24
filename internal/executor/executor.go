package executor

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/events"
	"github.com/agentctl/engine/internal/locks"
	"github.com/agentctl/engine/internal/resources"
	"github.com/agentctl/engine/internal/rpc"
	"github.com/agentctl/engine/internal/tasks"
)

// Store is the persistence surface the Executor needs; internal/store.DB
// satisfies it.
type Store interface {
	SaveTask(t *tasks.Task) error
	SaveAgent(a *agents.Agent) error
	SaveExecution(e *TaskExecution) error
	GetExecution(id string) (*TaskExecution, error)
	ListExecutionLogs(executionID string) ([]*ExecutionLog, error)
}

// Publisher is the cross-process half of the Event Bridge; fire-and-forget.
type Publisher interface {
	Publish(evt events.Event) error
}

// AutoAssigner is the narrow slice of the Task Assigner the Executor
// needs for its step-11 best-effort auto-assign loop.
type AutoAssigner interface {
	AssignNextTask(agentID string) (*tasks.Task, error)
}

// ReviewHook is invoked after every completion so the caller can consult
// the Code Review gate without internal/executor importing
// internal/review (which itself would need executor's TaskExecution
// type, a cycle). Invoked on a background goroutine and explicitly
// fire-and-forget.
type ReviewHook func(t *tasks.Task, executedOnLocalTier bool)

// Config holds the Executor's tunables beyond the retry ladder.
type Config struct {
	Retry              RetryConfig
	WorkspaceDir        string
	CooldownMin         time.Duration
	CooldownMax         time.Duration
	CooldownEveryN      int // invoke context reset every N local completions, default 3
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Retry:          DefaultRetryConfig(),
		CooldownMin:    2 * time.Second,
		CooldownMax:    5 * time.Second,
		CooldownEveryN: 3,
	}
}

// Executor is the Task Executor.
type Executor struct {
	queue    *tasks.Queue
	registry *agents.Registry
	locks    *locks.Manager
	pool     *resources.Pool
	store    Store
	bus      *events.Bus
	external Publisher
	client   rpc.Client
	assigner AutoAssigner
	onReview ReviewHook
	cfg      Config

	sleep           func(time.Duration)
	localCompletions int
}

// New creates an Executor wired to its collaborators. onReview may be
// nil to disable the Code Review gate consultation.
func New(queue *tasks.Queue, registry *agents.Registry, lockMgr *locks.Manager, pool *resources.Pool, store Store, bus *events.Bus, external Publisher, client rpc.Client, autoAssigner AutoAssigner, onReview ReviewHook, cfg Config) *Executor {
	return &Executor{
		queue: queue, registry: registry, locks: lockMgr, pool: pool, store: store,
		bus: bus, external: external, client: client, assigner: autoAssigner, onReview: onReview, cfg: cfg,
		sleep: time.Sleep,
	}
}

// HandleTaskStart implements `handleTaskStart(taskId)`:
// transitions assigned -> in_progress, increments currentIteration,
// opens a new TaskExecution row. Re-entering with the same iteration
// already open is a no-op that returns the existing execution.
func (e *Executor) HandleTaskStart(taskID string) (*TaskExecution, error) {
	task, err := e.queue.GetByID(taskID)
	if err != nil {
		return nil, err
	}

	if task.Status == tasks.StatusInProgress {
		execID := executionID(taskID, task.CurrentIteration)
		if existing, err := e.store.GetExecution(execID); err == nil {
			return existing, nil
		}
	}

	if err := task.TransitionTo(tasks.StatusInProgress); err != nil {
		return nil, err
	}
	task.CurrentIteration++

	if err := e.store.SaveTask(task); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "persisting task %s start", taskID)
	}
	e.queue.Update(task)

	exec := &TaskExecution{
		ID:        executionID(taskID, task.CurrentIteration),
		TaskID:    taskID,
		AgentID:   task.AssignedAgentID,
		Iteration: task.CurrentIteration,
		Status:    ExecutionStarted,
		StartedAt: time.Now(),
	}
	if err := e.store.SaveExecution(exec); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "persisting execution start for task %s", taskID)
	}

	e.bus.Publish(events.New(events.TaskUpdated, map[string]any{"task": task}))
	e.bus.Publish(events.New(events.ExecutionStep, map[string]any{"executionId": exec.ID, "taskId": taskID, "status": "started"}))

	return exec, nil
}

func executionID(taskID string, iteration int) string {
	return taskID + ":" + strconv.Itoa(iteration)
}

// HandleTaskCompletion implements `handleTaskCompletion`.
func (e *Executor) HandleTaskCompletion(taskID string, result Result) error {
	task, err := e.queue.GetByID(taskID)
	if err != nil {
		return err
	}

	if reason, failed := safetyNetFailureReason(result.Output); failed {
		return e.HandleTaskFailure(taskID, reason)
	}

	e.locks.ReleaseFileLocks(taskID)
	e.pool.Release(taskID)
	persistOutput(e.cfg.WorkspaceDir, taskID, task.Title, result.Output)

	execID := executionID(taskID, task.CurrentIteration)
	logs, _ := e.store.ListExecutionLogs(execID)
	actual := ActualComplexity(logs, task.CurrentIteration-1)

	task.Status = tasks.StatusCompleted
	task.Result = result
	now := time.Now()
	task.CompletedAt = &now
	task.UpdatedAt = now
	task.Complexity = actual
	task.ComplexitySource = tasks.ComplexitySourceActual

	if err := e.store.SaveTask(task); err != nil {
		return apperr.Wrap(apperr.Internal, err, "persisting task %s completion", taskID)
	}
	e.queue.Update(task)

	if exec, err := e.store.GetExecution(execID); err == nil {
		exec.Status = ExecutionCompleted
		exec.CompletedAt = &now
		exec.Output = result.Output
		e.store.SaveExecution(exec)
	}

	agent, err := e.registry.Get(task.AssignedAgentID)
	if err == nil {
		agent.RecordCompletion(task.APICreditsUsed, task.TimeSpentMs)
		executedLocally := agent.AgentType == agents.TypeCoder
		e.finishAgentTurn(agent, executedLocally)
	}

	e.bus.Publish(events.New(events.TaskCompleted, map[string]any{"task": task}))
	e.publishExternal(events.New(events.TaskCompleted, map[string]any{"taskId": taskID}))

	if e.onReview != nil {
		executedLocally := err == nil && agent != nil && agent.AgentType == agents.TypeCoder
		go e.onReview(task, executedLocally)
	}

	if e.assigner != nil && task.AssignedAgentID != "" {
		if _, err := e.assigner.AssignNextTask(task.AssignedAgentID); err != nil {
			log.Printf("[EXECUTOR] best-effort auto-assign after completion of %s failed: %v", taskID, err)
		}
	}

	return nil
}

// finishAgentTurn applies the local-tier cooldown before
// re-marking the agent idle, then persists and broadcasts the new
// status.
func (e *Executor) finishAgentTurn(agent *agents.Agent, executedLocally bool) {
	if executedLocally {
		e.localCompletions++
		if delay := cooldownDelay(e.cfg.CooldownMin, e.cfg.CooldownMax); delay > 0 {
			e.sleep(delay)
		}
		if e.cfg.CooldownEveryN > 0 && e.localCompletions%e.cfg.CooldownEveryN == 0 {
			log.Printf("[EXECUTOR] resetting context for agent %s after %d local completions", agent.ID, e.localCompletions)
		}
	}

	agent.MarkIdle()
	if err := e.store.SaveAgent(agent); err != nil {
		log.Printf("[EXECUTOR] failed to persist agent %s idle transition: %v", agent.ID, err)
	}
	e.registry.Put(agent)
	e.bus.Publish(events.New(events.AgentStatusChanged, map[string]any{"agent": agent}))
}

// HandleTaskFailure implements `handleTaskFailure`.
func (e *Executor) HandleTaskFailure(taskID, errMsg string) error {
	task, err := e.queue.GetByID(taskID)
	if err != nil {
		return err
	}

	execID := executionID(taskID, task.CurrentIteration)
	if exec, err := e.store.GetExecution(execID); err == nil {
		exec.Status = ExecutionFailed
		exec.Error = errMsg
		now := time.Now()
		exec.CompletedAt = &now
		e.store.SaveExecution(exec)
	}

	if task.CurrentIteration < task.MaxIterations {
		if err := task.TransitionTo(tasks.StatusAssigned); err != nil {
			return err
		}
		task.Error = errMsg
		if err := e.store.SaveTask(task); err != nil {
			return apperr.Wrap(apperr.Internal, err, "persisting task %s retry transition", taskID)
		}
		e.queue.Update(task)
		e.bus.Publish(events.New(events.TaskUpdated, map[string]any{"task": task}))
		return nil
	}

	return e.AbortTask(taskID, errMsg)
}

// AbortTask implements `abortTask(taskId, error)`.
func (e *Executor) AbortTask(taskID, errMsg string) error {
	task, err := e.queue.GetByID(taskID)
	if err != nil {
		return err
	}

	e.locks.ReleaseFileLocks(taskID)
	e.pool.Release(taskID)

	execID := executionID(taskID, task.CurrentIteration)
	logs, _ := e.store.ListExecutionLogs(execID)
	task.Complexity = ActualComplexity(logs, task.CurrentIteration)
	task.ComplexitySource = tasks.ComplexitySourceActual

	if err := task.TransitionTo(tasks.StatusAborted); err != nil {
		return err
	}
	task.Error = errMsg
	task.ErrorCategory = categorizeError(errMsg, logs)

	if err := e.store.SaveTask(task); err != nil {
		return apperr.Wrap(apperr.Internal, err, "persisting task %s abort", taskID)
	}
	e.queue.Update(task)

	if agent, err := e.registry.Get(task.AssignedAgentID); err == nil {
		agent.RecordFailure()
		agent.MarkIdle()
		if err := e.store.SaveAgent(agent); err != nil {
			log.Printf("[EXECUTOR] failed to persist agent %s after abort: %v", agent.ID, err)
		}
		e.registry.Put(agent)
		e.bus.Publish(events.New(events.AgentStatusChanged, map[string]any{"agent": agent}))
	}

	e.bus.Publish(events.New(events.TaskFailed, map[string]any{"task": task}))
	e.bus.Publish(events.New(events.Alert, map[string]any{"severity": "warning", "taskId": taskID, "message": errMsg}))
	e.publishExternal(events.New(events.TaskFailed, map[string]any{"taskId": taskID}))

	return nil
}

func (e *Executor) publishExternal(evt events.Event) {
	if e.external == nil {
		return
	}
	if err := e.external.Publish(evt); err != nil && !apperr.Recoverable(err) {
		log.Printf("[EXECUTOR] external publish of %s failed: %v", evt.Type, err)
	}
}

// categorizeError classifies a failure into timeout / syntax /
// import-error / other, derived from the error text and log stream
// heuristics.
func categorizeError(errMsg string, logs []*ExecutionLog) string {
	if containsAny(errMsg, "timeout", "timed out", "deadline exceeded") {
		return "timeout"
	}
	if containsAny(errMsg, "syntaxerror", "syntax error", "unexpected token") {
		return "syntax"
	}
	if containsAny(errMsg, "importerror", "modulenotfounderror", "cannot find module", "no such file") {
		return "import_error"
	}
	for _, l := range logs {
		if containsAny(l.Observation, "timeout", "timed out") {
			return "timeout"
		}
	}
	return "other"
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// RunValidatedCompletion is a convenience that drives the Auto-Retry
// Ladder (when the task declares a validationCommand) and then routes to
// HandleTaskCompletion or HandleTaskFailure based on the outcome — the
// orchestration that happens before handleTaskCompletion finalizes success.
func (e *Executor) RunValidatedCompletion(ctx context.Context, taskID string, initial Result) error {
	task, err := e.queue.GetByID(taskID)
	if err != nil {
		return err
	}

	if task.ValidationCmd == "" || !e.cfg.Retry.Enabled {
		return e.HandleTaskCompletion(taskID, initial)
	}

	outcome := RunAutoRetryLadder(ctx, e.client, e.cfg.Retry, task)
	e.bus.Publish(events.New(events.AutoRetryResult, map[string]any{
		"taskId": taskID, "validated": outcome.Validated, "phase": outcome.Phase, "attempts": outcome.Attempts,
	}))
	if outcome.Validated {
		return e.HandleTaskCompletion(taskID, Result{Output: outcome.ExecutionResult.Output, Success: true})
	}
	return e.HandleTaskFailure(taskID, outcome.FinalError)
}

package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/events"
	"github.com/agentctl/engine/internal/locks"
	"github.com/agentctl/engine/internal/resources"
	"github.com/agentctl/engine/internal/rpc"
	"github.com/agentctl/engine/internal/tasks"
)

type fakeStore struct {
	mu         sync.Mutex
	tasks      map[string]*tasks.Task
	agents     map[string]*agents.Agent
	executions map[string]*TaskExecution
	logs       map[string][]*ExecutionLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks: map[string]*tasks.Task{}, agents: map[string]*agents.Agent{},
		executions: map[string]*TaskExecution{}, logs: map[string][]*ExecutionLog{},
	}
}

func (f *fakeStore) SaveTask(t *tasks.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) SaveAgent(a *agents.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[a.ID] = a
	return nil
}

func (f *fakeStore) SaveExecution(e *TaskExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[e.ID] = e
	return nil
}

func (f *fakeStore) GetExecution(id string) (*TaskExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.executions[id]; ok {
		return e, nil
	}
	return nil, apperr.NotFoundf("execution %s not found", id)
}

func (f *fakeStore) ListExecutionLogs(executionID string) ([]*ExecutionLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs[executionID], nil
}

type fakeLockStore struct {
	mu    sync.Mutex
	locks map[string]locks.FileLock
}

func (s *fakeLockStore) UpsertLock(l locks.FileLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[l.FilePath] = l
	return nil
}
func (s *fakeLockStore) DeleteLocksByTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, l := range s.locks {
		if l.TaskID == taskID {
			delete(s.locks, p)
		}
	}
	return nil
}
func (s *fakeLockStore) DeleteLockByPath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, path)
	return nil
}
func (s *fakeLockStore) ListAllLocks() ([]locks.FileLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]locks.FileLock, 0, len(s.locks))
	for _, l := range s.locks {
		out = append(out, l)
	}
	return out, nil
}

func newHarness(t *testing.T) (*Executor, *tasks.Queue, *agents.Registry, *fakeStore) {
	t.Helper()
	queue := tasks.NewQueue()
	registry := agents.NewRegistry()
	lockMgr := locks.NewManager(&fakeLockStore{locks: map[string]locks.FileLock{}})
	pool := resources.NewPool(nil)
	store := newFakeStore()
	bus := events.NewBus()
	cfg := DefaultConfig()
	cfg.Retry.Enabled = false
	exec := New(queue, registry, lockMgr, pool, store, bus, nil, nil, nil, nil, cfg)
	exec.sleep = func(time.Duration) {} // never actually sleep in tests
	return exec, queue, registry, store
}

func seedAssignedTask(queue *tasks.Queue, registry *agents.Registry, pool *resources.Pool) (*tasks.Task, *agents.Agent) {
	agent := agents.New("a1", "Coder", agents.TypeCoder)
	agent.MarkBusy("")
	task := tasks.New("add", "Create a simple function to add two numbers", tasks.TypeCode, 5)
	task.TransitionTo(tasks.StatusAssigned)
	task.AssignedAgentID = "a1"
	agent.MarkBusy(task.ID)
	queue.Add(task)
	registry.Put(agent)
	pool.Acquire(resources.Ollama, task.ID)
	return task, agent
}

func TestHandleTaskStartTransitionsAndIncrementsIteration(t *testing.T) {
	exec, queue, registry, _ := newHarness(t)
	task, _ := seedAssignedTask(queue, registry, exec.pool)

	got, err := exec.HandleTaskStart(task.ID)
	if err != nil {
		t.Fatalf("HandleTaskStart: %v", err)
	}
	if got.Iteration != 1 {
		t.Errorf("expected iteration 1, got %d", got.Iteration)
	}
	reloaded, _ := queue.GetByID(task.ID)
	if reloaded.Status != tasks.StatusInProgress {
		t.Errorf("expected in_progress, got %s", reloaded.Status)
	}
}

func TestHandleTaskStartIsIdempotent(t *testing.T) {
	exec, queue, registry, _ := newHarness(t)
	task, _ := seedAssignedTask(queue, registry, exec.pool)

	first, err := exec.HandleTaskStart(task.ID)
	if err != nil {
		t.Fatalf("first HandleTaskStart: %v", err)
	}
	second, err := exec.HandleTaskStart(task.ID)
	if err != nil {
		t.Fatalf("second HandleTaskStart: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected re-entry to return the same execution, got %s vs %s", first.ID, second.ID)
	}
}

func TestHandleTaskCompletionHappyPath(t *testing.T) {
	exec, queue, registry, store := newHarness(t)
	task, _ := seedAssignedTask(queue, registry, exec.pool)
	exec.HandleTaskStart(task.ID)

	if err := exec.HandleTaskCompletion(task.ID, Result{Output: `{"success": true}`, Success: true}); err != nil {
		t.Fatalf("HandleTaskCompletion: %v", err)
	}

	got, _ := queue.GetByID(task.ID)
	if got.Status != tasks.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if store.agents["a1"].Status != agents.StatusIdle {
		t.Errorf("expected agent idle, got %s", store.agents["a1"].Status)
	}
	if store.agents["a1"].Stats.Completed != 1 {
		t.Errorf("expected 1 completion recorded, got %d", store.agents["a1"].Stats.Completed)
	}
}

func TestHandleTaskCompletionSafetyNetRedirectsToFailure(t *testing.T) {
	exec, queue, registry, _ := newHarness(t)
	task, _ := seedAssignedTask(queue, registry, exec.pool)
	exec.HandleTaskStart(task.ID)

	err := exec.HandleTaskCompletion(task.ID, Result{Output: `{"success": false, "test_results": "2 FAILURE, 1 FAILED"}`})
	if err != nil {
		t.Fatalf("HandleTaskCompletion: %v", err)
	}

	got, _ := queue.GetByID(task.ID)
	if got.Status != tasks.StatusAssigned {
		t.Errorf("expected redirected failure to retry (assigned), got %s", got.Status)
	}
}

func TestHandleTaskFailureRetriesWhenIterationsRemain(t *testing.T) {
	exec, queue, registry, _ := newHarness(t)
	task, _ := seedAssignedTask(queue, registry, exec.pool)
	exec.HandleTaskStart(task.ID) // iteration 1 of 3

	if err := exec.HandleTaskFailure(task.ID, "boom"); err != nil {
		t.Fatalf("HandleTaskFailure: %v", err)
	}
	got, _ := queue.GetByID(task.ID)
	if got.Status != tasks.StatusAssigned {
		t.Errorf("expected retry (assigned), got %s", got.Status)
	}
}

func TestHandleTaskFailureAbortsAtMaxIterations(t *testing.T) {
	exec, queue, registry, _ := newHarness(t)
	task, _ := seedAssignedTask(queue, registry, exec.pool)
	task.CurrentIteration = task.MaxIterations
	task.Status = tasks.StatusInProgress
	queue.Update(task)

	if err := exec.HandleTaskFailure(task.ID, "boom"); err != nil {
		t.Fatalf("HandleTaskFailure: %v", err)
	}
	got, _ := queue.GetByID(task.ID)
	if got.Status != tasks.StatusAborted {
		t.Errorf("expected abort at max iterations, got %s", got.Status)
	}
	if got.ErrorCategory != "other" {
		t.Errorf("expected 'other' category for generic error, got %s", got.ErrorCategory)
	}
}

func TestAbortTaskReleasesLocksAndResources(t *testing.T) {
	exec, queue, registry, store := newHarness(t)
	task, _ := seedAssignedTask(queue, registry, exec.pool)
	task.LockedFiles = []string{"src/x.go"}
	exec.locks.LockFiles(task.ID, "a1", task.LockedFiles)
	if _, err := exec.HandleTaskStart(task.ID); err != nil {
		t.Fatalf("HandleTaskStart: %v", err)
	}

	if err := exec.AbortTask(task.ID, "timeout: deadline exceeded"); err != nil {
		t.Fatalf("AbortTask: %v", err)
	}

	locked, _ := exec.locks.GetLockedFiles()
	if len(locked) != 0 {
		t.Errorf("expected locks released, got %+v", locked)
	}
	if _, held := exec.pool.HolderOf(task.ID); held {
		t.Errorf("expected resource slot released")
	}
	if store.agents["a1"].Status != agents.StatusIdle {
		t.Errorf("expected agent reset to idle")
	}
	got, _ := queue.GetByID(task.ID)
	if got.ErrorCategory != "timeout" {
		t.Errorf("expected timeout category, got %s", got.ErrorCategory)
	}
}

func TestCategorizeError(t *testing.T) {
	cases := map[string]string{
		"operation timed out after 30s":       "timeout",
		"SyntaxError: unexpected token":       "syntax",
		"ImportError: no module named 'foo'":  "import_error",
		"something unexpected went wrong": "other",
	}
	for msg, want := range cases {
		if got := categorizeError(msg, nil); got != want {
			t.Errorf("categorizeError(%q) = %q, want %q", msg, got, want)
		}
	}
}

func TestActualComplexityClampsAndScalesWithLoopsAndTools(t *testing.T) {
	light := ActualComplexity([]*ExecutionLog{{Action: "read"}}, 0)
	heavy := ActualComplexity([]*ExecutionLog{
		{Action: "read", IsLoop: true, DurationMs: 600000},
		{Action: "write", IsLoop: true, DurationMs: 600000},
		{Action: "test", IsLoop: true, DurationMs: 600000},
	}, 3)
	if heavy <= light {
		t.Errorf("expected heavier execution to score higher: light=%v heavy=%v", light, heavy)
	}
	if heavy > 10 {
		t.Errorf("expected clamp to 10, got %v", heavy)
	}
}

func TestSlugify(t *testing.T) {
	if got := slugify("Add Two Numbers!"); got != "add-two-numbers" {
		t.Errorf("slugify = %q", got)
	}
	if got := slugify(""); got != "task" {
		t.Errorf("expected fallback 'task', got %q", got)
	}
}

type scriptedRPCClient struct {
	validateResults []rpc.ValidationResult
	validateIdx     int
}

func (c *scriptedRPCClient) Execute(ctx context.Context, taskDesc, model string, useHosted bool) (rpc.ExecuteResult, error) {
	return rpc.ExecuteResult{Success: true, Output: "patched"}, nil
}

func (c *scriptedRPCClient) RunValidation(ctx context.Context, command, language string) (rpc.ValidationResult, error) {
	r := c.validateResults[c.validateIdx]
	if c.validateIdx < len(c.validateResults)-1 {
		c.validateIdx++
	}
	return r, nil
}

// TestRunAutoRetryLadderScenarioS3 covers validation
// fails at phase 0 and phase 1, succeeds at phase 3, with remote
// disabled — final attempts must be 2.
func TestRunAutoRetryLadderScenarioS3(t *testing.T) {
	client := &scriptedRPCClient{
		validateResults: []rpc.ValidationResult{
			{Success: false, Output: "phase0 fail"},
			{Success: false, Output: "phase1 fail"},
			{Success: true},
		},
	}
	cfg := RetryConfig{
		Enabled: true, MaxOllamaRetries: 1, MaxRemoteRetries: 0, MaxHaikuRetries: 1,
		MaxTotalRetries: 3, ValidationTimeout: time.Second, RemoteConfigured: false,
	}
	task := tasks.New("t", "fix the bug", tasks.TypeDebug, 5)
	task.ValidationCmd = "run-tests"

	outcome := RunAutoRetryLadder(context.Background(), client, cfg, task)
	if !outcome.Validated {
		t.Fatalf("expected validated=true, got %+v", outcome)
	}
	if outcome.Phase != "phase3" {
		t.Errorf("expected phase3, got %s", outcome.Phase)
	}
	if outcome.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", outcome.Attempts)
	}
}

func TestRunAutoRetryLadderNeverExceedsHardCap(t *testing.T) {
	client := &scriptedRPCClient{
		validateResults: []rpc.ValidationResult{{Success: false, Output: "always fails"}},
	}
	cfg := RetryConfig{
		Enabled: true, MaxOllamaRetries: 5, MaxRemoteRetries: 5, MaxHaikuRetries: 5,
		MaxTotalRetries: 3, ValidationTimeout: time.Second, RemoteConfigured: true,
	}
	task := tasks.New("t", "fix the bug", tasks.TypeDebug, 5)
	task.ValidationCmd = "run-tests"

	outcome := RunAutoRetryLadder(context.Background(), client, cfg, task)
	if outcome.Validated {
		t.Fatalf("expected exhaustion, got %+v", outcome)
	}
	if outcome.Attempts > cfg.MaxTotalRetries {
		t.Errorf("expected at most %d attempts, got %d", cfg.MaxTotalRetries, outcome.Attempts)
	}
}

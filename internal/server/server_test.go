package server

import (
	"context"
	"sync"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/assigner"
	"github.com/agentctl/engine/internal/events"
	"github.com/agentctl/engine/internal/executor"
	"github.com/agentctl/engine/internal/locks"
	"github.com/agentctl/engine/internal/resources"
	"github.com/agentctl/engine/internal/router"
	"github.com/agentctl/engine/internal/rpc"
	"github.com/agentctl/engine/internal/tasks"
)

// fakeStore is an in-memory Store good enough to exercise every REST
// handler without a real database, mirroring the fakeStore the recovery
// package's tests use for the same purpose.
type fakeStore struct {
	mu         sync.Mutex
	tasks      map[string]*tasks.Task
	agents     map[string]*agents.Agent
	executions map[string]*executor.TaskExecution
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:      map[string]*tasks.Task{},
		agents:     map[string]*agents.Agent{},
		executions: map[string]*executor.TaskExecution{},
	}
}

func (f *fakeStore) SaveTask(t *tasks.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) DeleteTask(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) SaveAgent(a *agents.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[a.ID] = a
	return nil
}

func (f *fakeStore) SaveExecution(e *executor.TaskExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[e.ID] = e
	return nil
}

func (f *fakeStore) GetExecution(id string) (*executor.TaskExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.executions[id]; ok {
		return e, nil
	}
	return nil, apperr.NotFoundf("execution %s not found", id)
}

func (f *fakeStore) ListExecutionLogs(executionID string) ([]*executor.ExecutionLog, error) {
	return nil, nil
}

// fakeLockStore is the locks.Store double recovery_test.go also defines;
// redefined here (unexported, package-local) to keep this package's
// tests free of a cross-package test dependency.
type fakeLockStore struct {
	mu    sync.Mutex
	locks map[string]locks.FileLock
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{locks: map[string]locks.FileLock{}}
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

// fakeRPCClient satisfies rpc.Client without ever being dialed — the
// handler tests that reach executor.RunValidatedCompletion only exercise
// the no-ValidationCmd fast path, which never calls it.
type fakeRPCClient struct{}

func (fakeRPCClient) Execute(ctx context.Context, taskDesc, model string, useHosted bool) (rpc.ExecuteResult, error) {
	return rpc.ExecuteResult{Success: true}, nil
}

func (fakeRPCClient) RunValidation(ctx context.Context, command, language string) (rpc.ValidationResult, error) {
	return rpc.ValidationResult{Success: true}, nil
}

// testHarness wires a full Server over in-memory collaborators, for
// router-level (ServeHTTP) handler tests.
type testHarness struct {
	srv      *Server
	queue    *tasks.Queue
	registry *agents.Registry
	pool     *resources.Pool
	locks    *locks.Manager
	store    *fakeStore
}

func newTestHarness() *testHarness {
	queue := tasks.NewQueue()
	registry := agents.NewRegistry()
	lockMgr := locks.NewManager(newFakeLockStore())
	pool := resources.NewPool(nil)
	rtr := router.New(registry, nil)
	store := newFakeStore()
	bus := events.NewBus()

	assign := assigner.New(queue, registry, lockMgr, pool, rtr, store, bus, nil)
	exec := executor.New(queue, registry, lockMgr, pool, store, bus, nil, fakeRPCClient{}, assign, nil, executor.DefaultConfig())

	srv := New(queue, registry, lockMgr, pool, rtr, assign, exec, nil, nil, store, bus, nil)

	return &testHarness{srv: srv, queue: queue, registry: registry, pool: pool, locks: lockMgr, store: store}
}

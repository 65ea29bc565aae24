package store

import (
	"testing"
	"time"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/executor"
	"github.com/agentctl/engine/internal/locks"
	"github.com/agentctl/engine/internal/review"
	"github.com/agentctl/engine/internal/tasks"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTaskSaveAndGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	task := tasks.New("add", "create a function", tasks.TypeCode, 7)
	task.LockedFiles = []string{"src/a.go"}
	task.Result = map[string]any{"success": true}

	if err := db.SaveTask(task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	got, err := db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != task.Title || got.Priority != task.Priority {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
	if len(got.LockedFiles) != 1 || got.LockedFiles[0] != "src/a.go" {
		t.Errorf("expected lockedFiles to round-trip, got %v", got.LockedFiles)
	}
}

func TestTaskUpsertUpdatesExistingRow(t *testing.T) {
	db := openTestDB(t)
	task := tasks.New("t", "d", tasks.TypeCode, 5)
	db.SaveTask(task)

	task.Status = tasks.StatusAssigned
	task.AssignedAgentID = "a1"
	db.SaveTask(task)

	got, err := db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != tasks.StatusAssigned || got.AssignedAgentID != "a1" {
		t.Errorf("expected upsert to update status/assignment, got %+v", got)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetTask("missing"); err == nil {
		t.Error("expected NotFound error")
	}
}

func TestListTasksByStatus(t *testing.T) {
	db := openTestDB(t)
	pending := tasks.New("p", "d", tasks.TypeCode, 5)
	done := tasks.New("c", "d", tasks.TypeCode, 5)
	done.Status = tasks.StatusCompleted
	db.SaveTask(pending)
	db.SaveTask(done)

	got, err := db.ListTasksByStatus(tasks.StatusCompleted)
	if err != nil {
		t.Fatalf("ListTasksByStatus: %v", err)
	}
	if len(got) != 1 || got[0].ID != done.ID {
		t.Errorf("expected 1 completed task, got %+v", got)
	}
}

func TestDeleteTask(t *testing.T) {
	db := openTestDB(t)
	task := tasks.New("t", "d", tasks.TypeCode, 5)
	db.SaveTask(task)

	if err := db.DeleteTask(task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := db.GetTask(task.ID); err == nil {
		t.Error("expected task to be gone after delete")
	}
	if err := db.DeleteTask(task.ID); err == nil {
		t.Error("expected deleting a missing task to return NotFound")
	}
}

func TestAgentSaveAndGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	a := agents.New("a1", "Coder One", agents.TypeCoder)
	a.MarkBusy("t1")

	if err := db.SaveAgent(a); err != nil {
		t.Fatalf("SaveAgent: %v", err)
	}
	got, err := db.GetAgent("a1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Status != agents.StatusBusy || got.CurrentTaskID != "t1" {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
}

func TestListAgents(t *testing.T) {
	db := openTestDB(t)
	db.SaveAgent(agents.New("a1", "A", agents.TypeCoder))
	db.SaveAgent(agents.New("a2", "B", agents.TypeQA))

	got, err := db.ListAgents()
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 agents, got %d", len(got))
	}
}

func TestFileLockUpsertAndDelete(t *testing.T) {
	db := openTestDB(t)
	expiry := time.Now().Add(30 * time.Minute)
	lock := locks.FileLock{FilePath: "src/x.go", AgentID: "a1", TaskID: "t1", LockedAt: time.Now(), ExpiresAt: &expiry}

	if err := db.UpsertLock(lock); err != nil {
		t.Fatalf("UpsertLock: %v", err)
	}
	all, err := db.ListAllLocks()
	if err != nil {
		t.Fatalf("ListAllLocks: %v", err)
	}
	if len(all) != 1 || all[0].FilePath != "src/x.go" {
		t.Errorf("expected 1 lock, got %+v", all)
	}

	if err := db.DeleteLocksByTask("t1"); err != nil {
		t.Fatalf("DeleteLocksByTask: %v", err)
	}
	all, _ = db.ListAllLocks()
	if len(all) != 0 {
		t.Errorf("expected 0 locks after release, got %+v", all)
	}
}

func TestExecutionAndLogRoundTrip(t *testing.T) {
	db := openTestDB(t)
	exec := &executor.TaskExecution{
		ID:        "e1",
		TaskID:    "t1",
		AgentID:   "a1",
		Iteration: 1,
		Status:    executor.ExecutionStarted,
		StartedAt: time.Now(),
	}
	if err := db.SaveExecution(exec); err != nil {
		t.Fatalf("SaveExecution: %v", err)
	}

	logEntry := &executor.ExecutionLog{ID: "l1", ExecutionID: "e1", StepIndex: 0, Action: "run_tests", DurationMs: 120}
	if err := db.SaveExecutionLog(logEntry); err != nil {
		t.Fatalf("SaveExecutionLog: %v", err)
	}

	got, err := db.GetExecution("e1")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.TaskID != "t1" || got.Iteration != 1 {
		t.Errorf("round-trip mismatch: got %+v", got)
	}

	logs, err := db.ListExecutionLogs("e1")
	if err != nil {
		t.Fatalf("ListExecutionLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "run_tests" {
		t.Errorf("expected 1 log entry, got %+v", logs)
	}
}

func TestReviewRoundTrip(t *testing.T) {
	db := openTestDB(t)
	r := &review.CodeReview{
		ID:           "r1",
		TaskID:       "t1",
		ReviewerTier: "haiku",
		QualityScore: 4,
		Findings:     []review.Finding{{Severity: review.SeverityCritical, Category: "security", Description: "sql injection"}},
		Status:       review.StatusNeedsFixes,
		CreatedAt:    time.Now(),
	}
	if err := db.SaveReview(r); err != nil {
		t.Fatalf("SaveReview: %v", err)
	}

	got, err := db.GetReview("r1")
	if err != nil {
		t.Fatalf("GetReview: %v", err)
	}
	if len(got.Findings) != 1 || got.Findings[0].Severity != review.SeverityCritical {
		t.Errorf("expected findings to round-trip, got %+v", got.Findings)
	}

	byTask, err := db.ListReviewsByTask("t1")
	if err != nil {
		t.Fatalf("ListReviewsByTask: %v", err)
	}
	if len(byTask) != 1 {
		t.Errorf("expected 1 review for task, got %d", len(byTask))
	}
}

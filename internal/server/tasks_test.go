package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentctl/engine/internal/tasks"
)

func TestCreateAndGetTask(t *testing.T) {
	h := newTestHarness()

	body := bytes.NewBufferString(`{"title":"Add login form","description":"","taskType":"code","priority":3}`)
	req := httptest.NewRequest("POST", "/tasks", body)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created tasks.Task
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Status != tasks.StatusPending {
		t.Errorf("expected pending status, got %s", created.Status)
	}
	if h.store.tasks[created.ID] == nil {
		t.Error("expected task to be persisted")
	}

	getReq := httptest.NewRequest("GET", "/tasks/"+created.ID, nil)
	getW := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(getW, getReq)

	if getW.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", getW.Code)
	}
}

func TestCreateTaskValidationFailure(t *testing.T) {
	h := newTestHarness()

	body := bytes.NewBufferString(`{"title":"","priority":3}`)
	req := httptest.NewRequest("POST", "/tasks", body)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing title, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetTaskNotFound(t *testing.T) {
	h := newTestHarness()

	req := httptest.NewRequest("GET", "/tasks/does-not-exist", nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestUpdateTaskPartialFields(t *testing.T) {
	h := newTestHarness()
	task := tasks.New("Fix bug", "", tasks.TypeCode, 5)
	h.queue.Add(task)

	body := bytes.NewBufferString(`{"priority":8}`)
	req := httptest.NewRequest("PATCH", "/tasks/"+task.ID, body)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got, _ := h.queue.GetByID(task.ID)
	if got.Priority != 8 {
		t.Errorf("expected priority 8, got %d", got.Priority)
	}
	if got.Title != "Fix bug" {
		t.Errorf("expected title unchanged, got %q", got.Title)
	}
}

func TestDeleteTaskReleasesLocksAndResources(t *testing.T) {
	h := newTestHarness()
	task := tasks.New("Refactor module", "", tasks.TypeRefactor, 5)
	task.LockedFiles = []string{"src/a.go"}
	h.queue.Add(task)
	h.locks.LockFiles(task.ID, "agent-1", task.LockedFiles)
	h.pool.Acquire("ollama", task.ID)

	req := httptest.NewRequest("DELETE", "/tasks/"+task.ID, nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if _, err := h.queue.GetByID(task.ID); err == nil {
		t.Error("expected task removed from queue")
	}
	locked, _ := h.locks.GetLockedFiles()
	if len(locked) != 0 {
		t.Errorf("expected locks released, got %+v", locked)
	}
}

func TestListTasksFiltersByStatus(t *testing.T) {
	h := newTestHarness()
	pending := tasks.New("A", "", tasks.TypeCode, 5)
	h.queue.Add(pending)
	inProgress := tasks.New("B", "", tasks.TypeCode, 5)
	inProgress.TransitionTo(tasks.StatusAssigned)
	inProgress.TransitionTo(tasks.StatusInProgress)
	h.queue.Add(inProgress)

	req := httptest.NewRequest("GET", "/tasks?status=pending", nil)
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)

	var list []*tasks.Task
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 1 || list[0].ID != pending.ID {
		t.Errorf("expected only the pending task, got %+v", list)
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/events"
	"github.com/agentctl/engine/internal/tasks"
	"github.com/gorilla/mux"
)

// handleListTasks implements GET /tasks?status=&agent=.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var list []*tasks.Task
	if status := q.Get("status"); status != "" {
		list = s.queue.GetByStatus(tasks.Status(status))
	} else {
		list = s.queue.All()
	}

	if agentID := q.Get("agent"); agentID != "" {
		filtered := list[:0:0]
		for _, t := range list {
			if t.AssignedAgentID == agentID {
				filtered = append(filtered, t)
			}
		}
		list = filtered
	}

	if limit := parseIntQuery(q.Get("limit"), 0); limit > 0 {
		offset := parseIntQuery(q.Get("offset"), 0)
		if offset > len(list) {
			offset = len(list)
		}
		end := offset + limit
		if end > len(list) {
			end = len(list)
		}
		list = list[offset:end]
	}

	respondJSON(w, http.StatusOK, list)
}

// createTaskRequest is the POST /tasks request body.
type createTaskRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	TaskType       string   `json:"taskType"`
	Priority       int      `json:"priority"`
	MaxIterations  int      `json:"maxIterations,omitempty"`
	LockedFiles    []string `json:"lockedFiles,omitempty"`
	ValidationCmd  string   `json:"validationCommand,omitempty"`
	Language       string   `json:"language,omitempty"`
	RequiredAgent  string   `json:"requiredAgent,omitempty"`
	PreferredModel string   `json:"preferredModel,omitempty"`
	MissionID      string   `json:"missionId,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r, MaxPayloadSize)

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorStatus(w, http.StatusBadRequest, "malformed request body")
		return
	}

	priority := req.Priority
	if priority == 0 {
		priority = 5
	}
	t := tasks.New(req.Title, req.Description, tasks.Type(req.TaskType), priority)
	if req.MaxIterations > 0 {
		t.MaxIterations = req.MaxIterations
	}
	if req.LockedFiles != nil {
		t.LockedFiles = req.LockedFiles
	}
	t.ValidationCmd = req.ValidationCmd
	t.Language = req.Language
	t.RequiredAgent = req.RequiredAgent
	t.PreferredModel = req.PreferredModel
	t.MissionID = req.MissionID

	if err := t.Validate(); err != nil {
		respondError(w, err)
		return
	}

	s.queue.Add(t)
	if err := s.store.SaveTask(t); err != nil {
		respondError(w, apperr.Wrap(apperr.Internal, err, "persisting task %s", t.ID))
		return
	}
	s.bus.Publish(events.New(events.TaskCreated, map[string]any{"task": t}))

	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := s.queue.GetByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// updateTaskRequest holds only the fields PATCH is allowed to mutate;
// pointer fields distinguish "absent" from "set to zero value".
type updateTaskRequest struct {
	Title          *string   `json:"title,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Priority       *int      `json:"priority,omitempty"`
	MaxIterations  *int      `json:"maxIterations,omitempty"`
	LockedFiles    *[]string `json:"lockedFiles,omitempty"`
	ValidationCmd  *string   `json:"validationCommand,omitempty"`
	RequiredAgent  *string   `json:"requiredAgent,omitempty"`
	PreferredModel *string   `json:"preferredModel,omitempty"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := s.queue.GetByID(id)
	if err != nil {
		respondError(w, err)
		return
	}

	limitRequestSize(r, MaxPayloadSize)
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorStatus(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.MaxIterations != nil {
		t.MaxIterations = *req.MaxIterations
	}
	if req.LockedFiles != nil {
		t.LockedFiles = *req.LockedFiles
	}
	if req.ValidationCmd != nil {
		t.ValidationCmd = *req.ValidationCmd
	}
	if req.RequiredAgent != nil {
		t.RequiredAgent = *req.RequiredAgent
	}
	if req.PreferredModel != nil {
		t.PreferredModel = *req.PreferredModel
	}

	if err := t.Validate(); err != nil {
		respondError(w, err)
		return
	}

	s.queue.Update(t)
	if err := s.store.SaveTask(t); err != nil {
		respondError(w, apperr.Wrap(apperr.Internal, err, "persisting task %s update", t.ID))
		return
	}
	s.bus.Publish(events.New(events.TaskUpdated, map[string]any{"task": t}))

	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.queue.GetByID(id); err != nil {
		respondError(w, err)
		return
	}

	s.locks.ReleaseFileLocks(id)
	s.pool.Release(id)
	s.queue.Remove(id)
	if err := s.store.DeleteTask(id); err != nil {
		respondError(w, apperr.Wrap(apperr.Internal, err, "deleting task %s", id))
		return
	}
	s.bus.Publish(events.New(events.TaskDeleted, map[string]any{"taskId": id}))

	w.WriteHeader(http.StatusNoContent)
}

// parseIntQuery reads a positive int query param, returning fallback if
// absent or unparseable.
func parseIntQuery(q string, fallback int) int {
	n, err := strconv.Atoi(q)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

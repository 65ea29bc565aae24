package server

import (
	"encoding/json"
	"net/http"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/tasks"
	"github.com/gorilla/mux"
)

// queueSnapshot is the GET /queue response: pending tasks in assignment
// order, the active (assigned/in_progress) tasks, and which agents are
// currently idle.
type queueSnapshot struct {
	Pending     []any    `json:"pending"`
	Active      []any    `json:"active"`
	IdleAgents  []string `json:"idleAgents"`
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	pending := s.queue.PendingInOrder()
	pendingOut := make([]any, len(pending))
	for i, t := range pending {
		pendingOut[i] = t
	}

	var active []any
	for _, t := range s.queue.All() {
		if t.Status == tasks.StatusAssigned || t.Status == tasks.StatusInProgress {
			active = append(active, t)
		}
	}

	var idle []string
	for _, a := range s.registry.All() {
		if a.Status == agents.StatusIdle {
			idle = append(idle, a.ID)
		}
	}

	respondJSON(w, http.StatusOK, queueSnapshot{Pending: pendingOut, Active: active, IdleAgents: idle})
}

type assignRequest struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
}

// handleAssign implements POST /queue/assign: a caller-chosen pairing,
// delegated whole to assigner.Assigner.AssignTask.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r, MaxPayloadSize)
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" || req.AgentID == "" {
		respondErrorStatus(w, http.StatusBadRequest, "taskId and agentId are required")
		return
	}

	if err := s.assign.AssignTask(req.TaskID, req.AgentID); err != nil {
		respondError(w, err)
		return
	}
	t, err := s.queue.GetByID(req.TaskID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

type autoAssignRequest struct {
	AgentID string `json:"agentId"`
}

// handleAutoAssign implements POST /queue/auto-assign: the best pending
// candidate for the named agent, delegated to AssignNextTask.
func (s *Server) handleAutoAssign(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r, MaxPayloadSize)
	var req autoAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		respondErrorStatus(w, http.StatusBadRequest, "agentId is required")
		return
	}

	t, err := s.assign.AssignNextTask(req.AgentID)
	if err != nil {
		respondError(w, err)
		return
	}
	if t == nil {
		respondJSON(w, http.StatusOK, map[string]any{"assigned": false})
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// handleSmartAssign implements POST /queue/smart-assign: routes the
// highest-priority pending task via the Complexity Router, then assigns
// it to the agent the Route names.
func (s *Server) handleSmartAssign(w http.ResponseWriter, r *http.Request) {
	pending := s.queue.PendingInOrder()
	if len(pending) == 0 {
		respondJSON(w, http.StatusOK, map[string]any{"assigned": false})
		return
	}

	for _, candidate := range pending {
		route, err := s.rtr.Route(candidate)
		if err != nil {
			continue
		}
		if err := s.assign.AssignTask(candidate.ID, route.AgentID); err != nil {
			continue
		}
		t, err := s.queue.GetByID(candidate.ID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"task": t, "route": route})
		return
	}

	respondError(w, apperr.New(apperr.ResourceBusy, "no pending task could be routed and assigned"))
}

// handleParallelAssign implements POST /queue/parallel-assign, delegated
// to the Assigner's resource-aware fan-out.
func (s *Server) handleParallelAssign(w http.ResponseWriter, r *http.Request) {
	t, err := s.assign.ParallelAssign()
	if err != nil {
		respondError(w, err)
		return
	}
	if t == nil {
		respondJSON(w, http.StatusOK, map[string]any{"assigned": false})
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// handleRoutePreview implements GET /queue/{taskId}/route: a pure,
// non-mutating preview of what the Router would propose right now.
func (s *Server) handleRoutePreview(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskId"]
	t, err := s.queue.GetByID(taskID)
	if err != nil {
		respondError(w, err)
		return
	}
	route, err := s.rtr.Route(t)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, route)
}

func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	locked, err := s.locks.GetLockedFiles()
	if err != nil {
		respondError(w, apperr.Wrap(apperr.Internal, err, "listing file locks"))
		return
	}
	respondJSON(w, http.StatusOK, locked)
}

// handleReleaseLock implements DELETE /queue/locks/{path}, the emergency
// admin release endpoint.
func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	if err := s.locks.ReleasePath(path); err != nil {
		respondError(w, apperr.Wrap(apperr.Internal, err, "releasing lock %s", path))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResourceStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.pool.GetStatus())
}

func (s *Server) handleResourceClear(w http.ResponseWriter, r *http.Request) {
	s.pool.Clear()
	w.WriteHeader(http.StatusNoContent)
}

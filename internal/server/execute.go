package server

import (
	"encoding/json"
	"net/http"

	"github.com/agentctl/engine/internal/executor"
)

// executeRequest is the agent runtime's self-report of one attempt: it
// has already run the task and is handing back what happened, per
// executor.RunValidatedCompletion's initial Result parameter.
type executeRequest struct {
	TaskID  string         `json:"taskId"`
	Output  string         `json:"output"`
	Success bool           `json:"success"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// handleExecute implements POST /execute: start (or resume) one attempt,
// then run the configured auto-retry ladder if the task names a
// validation command, bounded by Server.executeTimeout.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	limitRequestSize(r, MaxPayloadSize)
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" {
		respondErrorStatus(w, http.StatusBadRequest, "taskId is required")
		return
	}

	if _, err := s.exec.HandleTaskStart(req.TaskID); err != nil {
		respondError(w, err)
		return
	}

	ctx, cancel := s.executeContext(r)
	defer cancel()

	result := executor.Result{Output: req.Output, Success: req.Success, Extra: req.Extra}
	if err := s.exec.RunValidatedCompletion(ctx, req.TaskID, result); err != nil {
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

package server

import (
	"encoding/json"
	"net/http"

	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/events"
	"github.com/gorilla/mux"
)

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.All())
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := s.registry.Get(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// patchAgentRequest holds the agent fields an operator may adjust without
// going through task assignment.
type patchAgentRequest struct {
	Name             *string `json:"name,omitempty"`
	Status           *string `json:"status,omitempty"`
	PreferredModel   *string `json:"preferredModel,omitempty"`
	AlwaysUseHosted  *bool   `json:"alwaysUseHosted,omitempty"`
	MaxContextTokens *int    `json:"maxContextTokens,omitempty"`
}

func (s *Server) handlePatchAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := s.registry.Get(id)
	if err != nil {
		respondError(w, err)
		return
	}

	limitRequestSize(r, MaxPayloadSize)
	var req patchAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorStatus(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if req.Name != nil {
		a.Name = *req.Name
	}
	if req.Status != nil {
		switch *req.Status {
		case "idle":
			a.MarkIdle()
		case "busy":
			a.MarkBusy(a.CurrentTaskID)
		case "stuck":
			a.MarkStuck()
		case "offline":
			a.Status = "offline"
		default:
			respondErrorStatus(w, http.StatusBadRequest, "unknown agent status "+*req.Status)
			return
		}
	}
	if req.PreferredModel != nil {
		a.Config.PreferredModel = *req.PreferredModel
	}
	if req.AlwaysUseHosted != nil {
		a.Config.AlwaysUseHosted = *req.AlwaysUseHosted
	}
	if req.MaxContextTokens != nil {
		a.Config.MaxContextTokens = *req.MaxContextTokens
	}

	if err := s.store.SaveAgent(a); err != nil {
		respondError(w, apperr.Wrap(apperr.Internal, err, "persisting agent %s", id))
		return
	}
	s.registry.Put(a)
	s.bus.Publish(events.New(events.AgentStatusChanged, map[string]any{"agent": a}))

	respondJSON(w, http.StatusOK, a)
}

// handleResetAllAgents implements POST /agents/reset-all: the admin
// recovery operation for a fleet wedged after an incident — every agent
// goes idle and its current task pointer is cleared, without touching the
// tasks those agents were holding (an operator calls the stuck-task
// sweeper or releases locks/resources separately if that is also needed).
func (s *Server) handleResetAllAgents(w http.ResponseWriter, r *http.Request) {
	for _, a := range s.registry.All() {
		a.MarkIdle()
		if err := s.store.SaveAgent(a); err != nil {
			respondError(w, apperr.Wrap(apperr.Internal, err, "persisting agent %s reset", a.ID))
			return
		}
		s.registry.Put(a)
		s.bus.Publish(events.New(events.AgentStatusChanged, map[string]any{"agent": a}))
	}
	respondJSON(w, http.StatusOK, s.registry.All())
}

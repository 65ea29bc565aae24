package agents

import (
	"sync"

	"github.com/agentctl/engine/internal/apperr"
)

// Registry is a thread-safe in-memory mirror of the agents table, the
// counterpart to tasks.Queue for the Agent side of the Assigner.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Put inserts or replaces an agent.
func (r *Registry) Put(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID] = a
}

// Get returns the agent with the given id, or NotFound.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents[id]; ok {
		return a, nil
	}
	return nil, apperr.NotFoundf("agent %s not found", id)
}

// Remove deletes the agent with the given id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

// All returns a snapshot slice of every registered agent.
func (r *Registry) All() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

// IdleOfType returns the first idle agent of the given type, or nil.
func (r *Registry) IdleOfType(t Type) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.AgentType == t && a.Status == StatusIdle {
			return a
		}
	}
	return nil
}

// CountIdleOfType returns how many agents of the given type are idle.
func (r *Registry) CountIdleOfType(t Type) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.agents {
		if a.AgentType == t && a.Status == StatusIdle {
			n++
		}
	}
	return n
}

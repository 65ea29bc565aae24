// Package resources implements the Resource Pool: a process-wide counting
// semaphore over the small set of shared compute slots (local GPU, paid
// API), keyed by resourceType and associating each held slot with the
// taskId that holds it so release is idempotent.
package resources

import "sync"

// Type is a kind of shared compute resource.
type Type string

const (
	Ollama Type = "ollama"
	Claude Type = "claude"
)

// DefaultComplexityThreshold is the complexity score at and above which
// getResourceForComplexity routes to Claude instead of Ollama.
const DefaultComplexityThreshold = 7.0

// Status is a read-only snapshot for observability endpoints.
type Status struct {
	MaxSlots    map[Type]int `json:"maxSlots"`
	ActiveSlots map[Type]int `json:"activeSlots"`
}

// Pool is the Resource Pool. All operations are protected by a single
// mutex; holder-map mutation and counter mutation happen in the same
// critical section — lock hold time is O(1).
type Pool struct {
	mu                  sync.Mutex
	maxSlots            map[Type]int
	holders             map[string]Type // taskId -> resourceType
	complexityThreshold float64
}

// NewPool creates a Pool with the given per-type capacities. Unspecified
// types default to ollama=1, claude=3.
func NewPool(maxSlots map[Type]int) *Pool {
	m := map[Type]int{Ollama: 1, Claude: 3}
	for t, n := range maxSlots {
		m[t] = n
	}
	return &Pool{
		maxSlots:            m,
		holders:             make(map[string]Type),
		complexityThreshold: DefaultComplexityThreshold,
	}
}

// SetComplexityThreshold overrides the default complexity/tier boundary
// (config RESOURCE_POOL / OLLAMA_COMPLEXITY_THRESHOLD).
func (p *Pool) SetComplexityThreshold(threshold float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.complexityThreshold = threshold
}

func (p *Pool) activeCountLocked(t Type) int {
	n := 0
	for _, holderType := range p.holders {
		if holderType == t {
			n++
		}
	}
	return n
}

// CanAcquire reports whether a slot of the given type is currently free.
// Advisory only — callers must still call Acquire and check its result,
// since this is not atomic with a subsequent Acquire.
func (p *Pool) CanAcquire(t Type) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeCountLocked(t) < p.maxSlots[t]
}

// Acquire atomically increments the active count for t and records
// taskID as its holder, if a slot is free. Repeated acquisition by the
// same taskID for the same type is a no-op that still returns true;
// acquisition by the same taskID for a *different* type releases the old
// holding first (a task holds at most one resource at a time).
func (p *Pool) Acquire(t Type, taskID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.holders[taskID]; ok {
		if existing == t {
			return true
		}
		delete(p.holders, taskID)
	}

	if p.activeCountLocked(t) >= p.maxSlots[t] {
		return false
	}
	p.holders[taskID] = t
	return true
}

// Release drops taskID's holding, if any. No error if taskID is unknown —
// release is always safe to call on every terminal path.
func (p *Pool) Release(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.holders, taskID)
}

// GetResourceForComplexity implements the routing rule:
// complexity below the threshold uses the free local tier, at or above it
// uses the paid tier.
func (p *Pool) GetResourceForComplexity(complexity float64) Type {
	p.mu.Lock()
	threshold := p.complexityThreshold
	p.mu.Unlock()
	if complexity < threshold {
		return Ollama
	}
	return Claude
}

// GetStatus returns a snapshot of capacities and current usage.
func (p *Pool) GetStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := Status{
		MaxSlots:    make(map[Type]int, len(p.maxSlots)),
		ActiveSlots: make(map[Type]int, len(p.maxSlots)),
	}
	for t, n := range p.maxSlots {
		status.MaxSlots[t] = n
		status.ActiveSlots[t] = p.activeCountLocked(t)
	}
	return status
}

// Clear drops every holder, admin-only (and test isolation, per the
// avoiding cross-test state leakage for singleton services).
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holders = make(map[string]Type)
}

// HolderOf returns the resource type taskID currently holds, if any.
func (p *Pool) HolderOf(taskID string) (Type, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.holders[taskID]
	return t, ok
}

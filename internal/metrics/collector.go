// Package metrics derives the control plane's observability aggregates
// (the /metrics/* family) on demand from the live tasks.Queue and
// agents.Registry, rather than having them pushed to it: this domain's
// Task and Agent already carry every figure a dashboard needs
// (Task.Complexity, Agent.Stats), so the Collector's job is aggregation,
// not bookkeeping of externally-reported per-agent counters.
package metrics

import (
	"sync"
	"time"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/tasks"
)

// MaxHistory bounds the number of snapshots TakeSnapshot retains.
const MaxHistory = 1000

// Overview is a point-in-time aggregate across every task and agent.
type Overview struct {
	Timestamp   time.Time      `json:"timestamp"`
	TotalTasks  int            `json:"totalTasks"`
	ByStatus    map[string]int `json:"byStatus"`
	TotalAgents int            `json:"totalAgents"`
	IdleAgents  int            `json:"idleAgents"`
	BusyAgents  int            `json:"busyAgents"`
	StuckAgents int            `json:"stuckAgents"`
	SuccessRate float64        `json:"successRate"`
}

// Collector computes Overview/timeline/distribution aggregates from a
// Queue and Registry, and keeps a bounded history of snapshots for the
// timeline endpoint.
type Collector struct {
	queue    *tasks.Queue
	registry *agents.Registry

	mu      sync.Mutex
	history []Overview
}

// NewCollector builds a Collector reading from queue and registry.
func NewCollector(queue *tasks.Queue, registry *agents.Registry) *Collector {
	return &Collector{queue: queue, registry: registry}
}

// Overview computes the current aggregate without touching history.
func (c *Collector) Overview() Overview {
	all := c.queue.All()
	byStatus := map[string]int{}
	for _, t := range all {
		byStatus[string(t.Status)]++
	}

	var idle, busy, stuck int
	for _, a := range c.registry.All() {
		switch a.Status {
		case agents.StatusIdle:
			idle++
		case agents.StatusBusy:
			busy++
		case agents.StatusStuck:
			stuck++
		}
	}

	return Overview{
		Timestamp:   time.Now(),
		TotalTasks:  len(all),
		ByStatus:    byStatus,
		TotalAgents: len(c.registry.All()),
		IdleAgents:  idle,
		BusyAgents:  busy,
		StuckAgents: stuck,
		SuccessRate: c.successRate(all),
	}
}

// TakeSnapshot computes the current Overview, appends it to history
// (pruned to MaxHistory entries) and returns it. Called periodically by
// whatever drives the /metrics/timeline endpoint's sampling cadence.
func (c *Collector) TakeSnapshot() Overview {
	snap := c.Overview()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, snap)
	if len(c.history) > MaxHistory {
		c.history = c.history[len(c.history)-MaxHistory:]
	}
	return snap
}

// GetHistory returns a copy of the retained snapshot history.
func (c *Collector) GetHistory() []Overview {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Overview, len(c.history))
	copy(out, c.history)
	return out
}

// ResetHistory clears the retained snapshot history (admin operation).
func (c *Collector) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// TypeDistribution counts tasks by Type.
func (c *Collector) TypeDistribution() map[string]int {
	out := map[string]int{}
	for _, t := range c.queue.All() {
		out[string(t.TaskType)]++
	}
	return out
}

// SuccessRate returns the fleet-wide completed/(completed+aborted) ratio
// across all terminal tasks, 0 if none have finished yet.
func (c *Collector) SuccessRate() float64 {
	return c.successRate(c.queue.All())
}

func (c *Collector) successRate(all []*tasks.Task) float64 {
	var completed, aborted int
	for _, t := range all {
		switch t.Status {
		case tasks.StatusCompleted:
			completed++
		case tasks.StatusAborted:
			aborted++
		}
	}
	total := completed + aborted
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

// SuccessRateByAgent reads each agent's own rolling Stats.SuccessRate
// (maintained by Agent.RecordCompletion/RecordFailure), rather than
// recomputing it from the task list — an agent's rate should survive
// that agent's completed tasks being deleted.
func (c *Collector) SuccessRateByAgent() map[string]float64 {
	out := map[string]float64{}
	for _, a := range c.registry.All() {
		out[a.ID] = a.Stats.SuccessRate
	}
	return out
}

// ComplexityBucket is one bucket of the complexity histogram, spanning
// [Min, Max).
type ComplexityBucket struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// ComplexityDistribution buckets every task's Complexity into unit-width
// bins over the router's [1, 10] score range.
func (c *Collector) ComplexityDistribution() []ComplexityBucket {
	buckets := make([]ComplexityBucket, 10)
	for i := range buckets {
		buckets[i] = ComplexityBucket{Min: float64(i + 1), Max: float64(i + 2)}
	}
	for _, t := range c.queue.All() {
		idx := int(t.Complexity) - 1
		if idx < 0 {
			idx = 0
		}
		if idx > 9 {
			idx = 9
		}
		buckets[idx].Count++
	}
	return buckets
}

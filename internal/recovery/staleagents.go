package recovery

import (
	"log"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/events"
	"github.com/agentctl/engine/internal/procutil"
)

// SweepStaleAgents marks offline any agent whose backing OS process has
// exited without a clean shutdown — a complement to the timeout-based
// task sweep: a dead process will never call back to complete or fail
// its current task, so the stuck-task timeout alone would leave the
// fleet dashboard showing a "busy" agent that can never progress.
// Agents with PID == 0 (remote or untracked runtimes) are skipped.
func (s *Sweeper) SweepStaleAgents() int {
	marked := 0
	for _, a := range s.registry.All() {
		if a.PID == 0 || a.Status == agents.StatusOffline {
			continue
		}
		if procutil.IsRunning(a.PID) {
			continue
		}
		log.Printf("[RECOVERY] agent %s process %d is no longer running, marking offline", a.ID, a.PID)
		a.Status = agents.StatusOffline
		if err := s.store.SaveAgent(a); err != nil {
			log.Printf("[RECOVERY] failed to persist agent %s offline transition: %v", a.ID, err)
			continue
		}
		s.registry.Put(a)
		s.bus.Publish(events.New(events.AgentStatusChanged, map[string]any{"agent": a}))
		marked++
	}
	return marked
}

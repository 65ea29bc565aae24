package server

import (
	"net/http"
	"time"
)

// handleAPIOverview implements the supplemented GET /api/overview: a
// single read-only aggregate a status page can poll instead of stitching
// together /queue, /queue/resources and /queue/locks itself.
func (s *Server) handleAPIOverview(w http.ResponseWriter, r *http.Request) {
	locked, _ := s.locks.GetLockedFiles()

	overview := map[string]any{
		"uptime":       time.Since(s.startedAt).String(),
		"queueDepth":   len(s.queue.PendingInOrder()),
		"totalTasks":   s.queue.Len(),
		"totalAgents":  len(s.registry.All()),
		"resourcePool": s.pool.GetStatus(),
		"activeLocks":  len(locked),
	}
	if s.alerts != nil {
		overview["alertBanner"] = s.alerts.BannerState()
	}

	respondJSON(w, http.StatusOK, overview)
}

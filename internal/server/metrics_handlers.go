package server

import "net/http"

func (s *Server) handleMetricsOverview(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.TakeSnapshot())
}

func (s *Server) handleMetricsTimeline(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.GetHistory())
}

func (s *Server) handleMetricsDistribution(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.TypeDistribution())
}

func (s *Server) handleSuccessRate(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]float64{"successRate": s.metrics.SuccessRate()})
}

func (s *Server) handleSuccessRateByAgent(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SuccessRateByAgent())
}

func (s *Server) handleComplexityDistribution(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.ComplexityDistribution())
}

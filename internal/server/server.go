// Package server exposes the control plane's REST and WebSocket surface:
// one *Handler-shaped method group per subsystem, wired onto a gorilla/mux
// router, collapsed into a single package since this engine has relatively
// few endpoint families.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/alerting"
	"github.com/agentctl/engine/internal/assigner"
	"github.com/agentctl/engine/internal/events"
	"github.com/agentctl/engine/internal/executor"
	"github.com/agentctl/engine/internal/locks"
	"github.com/agentctl/engine/internal/metrics"
	"github.com/agentctl/engine/internal/resources"
	"github.com/agentctl/engine/internal/review"
	"github.com/agentctl/engine/internal/router"
	"github.com/agentctl/engine/internal/tasks"
	"github.com/gorilla/mux"
)

// Store is the persistence surface the REST layer needs directly (task
// create/update/delete); internal/store.DB satisfies it.
type Store interface {
	SaveTask(t *tasks.Task) error
	DeleteTask(id string) error
	SaveAgent(a *agents.Agent) error
}

// DefaultExecuteTimeout bounds how long POST /execute lets the auto-retry
// ladder run; once it passes, the ladder's remaining calls fail and the
// task is recorded as failed. The value matches
// config.AutoRetryValidationTimeoutMS's default order of magnitude times
// the default retry budget.
const DefaultExecuteTimeout = 60 * time.Second

// Server wires every control-plane subsystem onto an HTTP surface.
type Server struct {
	mux       *mux.Router
	hub       *Hub
	queue     *tasks.Queue
	registry  *agents.Registry
	locks     *locks.Manager
	pool      *resources.Pool
	rtr       *router.Router
	assign    *assigner.Assigner
	exec      *executor.Executor
	gate      *review.Gate
	alerts    *alerting.Manager
	metrics   *metrics.Collector
	store     Store
	bus       *events.Bus

	startedAt      time.Time
	executeTimeout time.Duration

	// ShutdownChan is closed exactly once, by RequestShutdown or the
	// POST /admin/shutdown handler, to let main's select loop drive a
	// graceful exit the same way an OS signal would.
	ShutdownChan chan struct{}
}

// New builds a Server and registers its routes. hub and alerts may be nil
// (no WebSocket fan-out / no alert sinks configured, respectively — e.g.
// tests exercising only REST handlers).
func New(
	queue *tasks.Queue,
	registry *agents.Registry,
	lockMgr *locks.Manager,
	pool *resources.Pool,
	rtr *router.Router,
	assign *assigner.Assigner,
	exec *executor.Executor,
	gate *review.Gate,
	alerts *alerting.Manager,
	store Store,
	bus *events.Bus,
	hub *Hub,
) *Server {
	s := &Server{
		mux:            mux.NewRouter(),
		hub:            hub,
		queue:          queue,
		registry:       registry,
		locks:          lockMgr,
		pool:           pool,
		rtr:            rtr,
		assign:         assign,
		exec:           exec,
		gate:           gate,
		alerts:         alerts,
		metrics:        metrics.NewCollector(queue, registry),
		store:          store,
		bus:            bus,
		startedAt:      time.Now(),
		executeTimeout: DefaultExecuteTimeout,
		ShutdownChan:   make(chan struct{}),
	}
	if bus != nil && hub != nil {
		bus.Subscribe(hub.BroadcastEvent, events.AllTypes()...)
	}
	s.setupRoutes()
	return s
}

// Handler returns the server's root http.Handler, for httptest.Server or
// http.Server.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) setupRoutes() {
	s.mux.Use(SecurityHeadersMiddleware)

	s.mux.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.mux.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	s.mux.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	s.mux.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	s.mux.HandleFunc("/tasks/{id}", s.handleUpdateTask).Methods("PATCH", "PUT")
	s.mux.HandleFunc("/tasks/{id}", s.handleDeleteTask).Methods("DELETE")

	s.mux.HandleFunc("/queue", s.handleQueueList).Methods("GET")
	s.mux.HandleFunc("/queue/assign", s.handleAssign).Methods("POST")
	s.mux.HandleFunc("/queue/auto-assign", s.handleAutoAssign).Methods("POST")
	s.mux.HandleFunc("/queue/smart-assign", s.handleSmartAssign).Methods("POST")
	s.mux.HandleFunc("/queue/parallel-assign", s.handleParallelAssign).Methods("POST")
	s.mux.HandleFunc("/queue/{taskId}/route", s.handleRoutePreview).Methods("GET")
	s.mux.HandleFunc("/queue/locks", s.handleListLocks).Methods("GET")
	s.mux.HandleFunc("/queue/locks/{path:.*}", s.handleReleaseLock).Methods("DELETE")
	s.mux.HandleFunc("/queue/resources", s.handleResourceStatus).Methods("GET")
	s.mux.HandleFunc("/queue/resources/clear", s.handleResourceClear).Methods("POST")

	s.mux.HandleFunc("/agents", s.handleListAgents).Methods("GET")
	s.mux.HandleFunc("/agents/reset-all", s.handleResetAllAgents).Methods("POST")
	s.mux.HandleFunc("/agents/{id}", s.handleGetAgent).Methods("GET")
	s.mux.HandleFunc("/agents/{id}", s.handlePatchAgent).Methods("PATCH")

	s.mux.HandleFunc("/execute", s.handleExecute).Methods("POST")

	s.mux.HandleFunc("/metrics/overview", s.handleMetricsOverview).Methods("GET")
	s.mux.HandleFunc("/metrics/timeline", s.handleMetricsTimeline).Methods("GET")
	s.mux.HandleFunc("/metrics/distribution", s.handleMetricsDistribution).Methods("GET")
	s.mux.HandleFunc("/metrics/success-rate", s.handleSuccessRate).Methods("GET")
	s.mux.HandleFunc("/metrics/success-rate/by-agent", s.handleSuccessRateByAgent).Methods("GET")
	s.mux.HandleFunc("/metrics/complexity-distribution", s.handleComplexityDistribution).Methods("GET")

	s.mux.HandleFunc("/api/overview", s.handleAPIOverview).Methods("GET")

	s.mux.HandleFunc("/admin/shutdown", s.handleShutdown).Methods("POST")

	if s.hub != nil {
		s.mux.HandleFunc("/ws", s.hub.ServeWS)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
		"agents": len(s.registry.All()),
		"tasks":  s.queue.Len(),
	})
}

// handleShutdown initiates a graceful shutdown, restricted to localhost
// callers (instance.SendShutdownRequest is the intended caller, from
// `agentctl -stop` on the same host).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	if host != "127.0.0.1" && host != "::1" {
		respondErrorStatus(w, http.StatusForbidden, "shutdown can only be requested from localhost")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "shutting_down",
		"message": "graceful shutdown initiated",
	})
	s.RequestShutdown()
}

// RequestShutdown signals the server to shut down gracefully. Safe to call
// more than once — subsequent calls are no-ops.
func (s *Server) RequestShutdown() {
	select {
	case <-s.ShutdownChan:
	default:
		close(s.ShutdownChan)
	}
}

// executeContext bounds a POST /execute call by Server.executeTimeout.
func (s *Server) executeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.executeTimeout)
}

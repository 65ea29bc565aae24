// Package bus implements the cross-process half of the Event Bridge: an
// embedded NATS server for local/dev deployments and a thin client that
// publishes canonical events to topics mirroring their names
// ("Cross-process pub/sub").
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedConfig configures an in-process NATS server, for single-binary
// deployments that don't want to run NATS separately.
type EmbeddedConfig struct {
	Port    int
	DataDir string
}

// Embedded wraps a nats-server/v2 instance.
type Embedded struct {
	mu      sync.RWMutex
	srv     *server.Server
	cfg     EmbeddedConfig
	running bool
}

// NewEmbedded creates an Embedded server, defaulting Port to 4222.
func NewEmbedded(cfg EmbeddedConfig) *Embedded {
	if cfg.Port <= 0 {
		cfg.Port = 4222
	}
	return &Embedded{cfg: cfg}
}

// Start launches the embedded server and blocks until it is ready for
// connections or 10s elapse.
func (e *Embedded) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("embedded nats server already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       e.cfg.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	if e.cfg.DataDir != "" {
		opts.JetStream = true
		opts.StoreDir = e.cfg.DataDir
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("creating embedded nats server: %w", err)
	}
	e.srv = ns
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("embedded nats server not ready for connections")
	}
	e.running = true
	return nil
}

// Shutdown gracefully stops the embedded server, if running.
func (e *Embedded) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.srv == nil {
		return
	}
	e.srv.Shutdown()
	e.srv.WaitForShutdown()
	e.running = false
	e.srv = nil
}

// URL returns the client connection string for this embedded server.
func (e *Embedded) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fmt.Sprintf("nats://127.0.0.1:%d", e.cfg.Port)
}

// IsRunning reports whether the embedded server is currently accepting
// connections.
func (e *Embedded) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

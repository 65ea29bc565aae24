// Command agentctl is the control-plane engine: it wires the Complexity
// Router, Resource Pool, File Lock Manager, Task Assigner, Task Executor,
// Code Review gate and Stuck-Task Recovery sweeper onto a REST/WebSocket
// surface, with single-instance locking, a pre-flight port check, a
// background recovery goroutine, and signal- or API-driven graceful
// shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/alerting"
	"github.com/agentctl/engine/internal/assigner"
	"github.com/agentctl/engine/internal/bus"
	"github.com/agentctl/engine/internal/config"
	"github.com/agentctl/engine/internal/events"
	"github.com/agentctl/engine/internal/executor"
	"github.com/agentctl/engine/internal/instance"
	"github.com/agentctl/engine/internal/locks"
	"github.com/agentctl/engine/internal/recovery"
	"github.com/agentctl/engine/internal/resources"
	"github.com/agentctl/engine/internal/review"
	"github.com/agentctl/engine/internal/router"
	"github.com/agentctl/engine/internal/rpc"
	"github.com/agentctl/engine/internal/server"
	"github.com/agentctl/engine/internal/store"
	"github.com/agentctl/engine/internal/tasks"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dataDirFlag := flag.String("data", "data", "data directory (db, pid file, embedded NATS store)")
	fleetPath := flag.String("fleet", "configs/fleet.yaml", "agent fleet YAML overlay")
	natsURL := flag.String("nats-url", "", "external NATS URL for the Event Bridge and agent-runtime RPC (empty: start an embedded server)")
	natsPort := flag.Int("nats-port", 4222, "port for the embedded NATS server, when -nats-url is empty")

	status := flag.Bool("status", false, "show status of the running instance")
	stop := flag.Bool("stop", false, "stop the running instance gracefully")
	forceStop := flag.Bool("force-stop", false, "force kill the running instance")
	flag.Parse()

	if *status {
		showInstanceStatus(*dataDirFlag, *port)
		os.Exit(0)
	}
	if *stop || *forceStop {
		stopInstance(*dataDirFlag, *forceStop)
		os.Exit(0)
	}

	basePath, err := getBasePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to determine base path: %v\n", err)
		os.Exit(1)
	}
	dataDir := *dataDirFlag
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(basePath, dataDir)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	if !filepath.IsAbs(*fleetPath) {
		*fleetPath = filepath.Join(basePath, *fleetPath)
	}

	pidFilePath := filepath.Join(dataDir, "agentctl.pid")
	instanceMgr := instance.NewManager(pidFilePath, filepath.Join(dataDir, "agentctl.db"), *port)

	existingInfo, err := instanceMgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to check for existing instance: %v\n", err)
		os.Exit(1)
	}
	if existingInfo != nil && existingInfo.IsRunning {
		resolver := instance.NewConflictResolver(instanceMgr, instance.IsInteractive())
		if err := resolver.Resolve(existingInfo); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to resolve instance conflict: %v\n", err)
			os.Exit(1)
		}
		*port = instanceMgr.GetPort()
	}

	if err := instanceMgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to acquire instance lock: %v\n", err)
		os.Exit(1)
	}
	defer instanceMgr.ReleaseLock()

	if !instance.IsPortAvailable(*port) {
		procPID, _ := instance.GetProcessUsingPort(*port)
		fmt.Fprintf(os.Stderr, "\nERROR: Port %d is in use by process %d\n", *port, procPID)
		fmt.Fprintf(os.Stderr, "Try: -port 8081\n")
		os.Exit(1)
	}

	printBanner()

	db, err := openStore(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	fmt.Printf("  Store opened at %s\n", filepath.Join(dataDir, "agentctl.db"))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	queue := tasks.NewQueue()
	registry := agents.NewRegistry()
	if err := hydrateState(db, queue, registry); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to hydrate persisted state: %v\n", err)
	}
	if err := applyFleetConfig(*fleetPath, registry, db); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to apply fleet config: %v\n", err)
	}
	fmt.Printf("  Loaded %d task(s), %d agent(s)\n", queue.Len(), len(registry.All()))

	lockMgr := locks.NewManager(db)
	pool := resources.NewPool(cfg.ResourceMaxSlots())
	pool.SetComplexityThreshold(cfg.OllamaComplexityThreshold)
	rtr := router.New(registry, nil)
	eventBus := events.NewBus()

	embedded, resolvedNATSURL, err := startNATS(*natsURL, *natsPort, dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start the Event Bridge's NATS transport: %v\n", err)
		os.Exit(1)
	}
	if embedded != nil {
		defer embedded.Shutdown()
	}

	busClient, err := bus.Connect(resolvedNATSURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect the cross-process Event Bridge: %v\n", err)
		os.Exit(1)
	}
	defer busClient.Close()

	agentConn, err := nats.Connect(resolvedNATSURL, nats.Name("agentctl-rpc"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to the agent runtime RPC transport: %v\n", err)
		os.Exit(1)
	}
	defer agentConn.Close()
	rpcClient := rpc.NewNATSClient(agentConn)

	fmt.Println("  Components initialized")

	gate := review.NewGate(cfg.ReviewConfig())
	alerts := alerting.NewManager(alerting.DefaultConfig())
	alerts.Subscribe(eventBus)

	assign := assigner.New(queue, registry, lockMgr, pool, rtr, db, eventBus, busClient)

	onReview := newReviewHook(gate, rpcClient, db, queue, eventBus, busClient)
	exec := executor.New(queue, registry, lockMgr, pool, db, eventBus, busClient, rpcClient, assign, onReview, cfg.ExecutorConfig())

	sweeper := recovery.New(queue, registry, lockMgr, pool, db, eventBus, busClient)
	cfg.ApplyRecovery(sweeper)

	hub := server.NewHub()
	srv := server.New(queue, registry, lockMgr, pool, rtr, assign, exec, gate, alerts, db, eventBus, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run()
	go sweeper.Run(ctx)
	fmt.Println("  Recovery sweeper started")

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: srv.Handler(),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.ListenAndServe()
	}()

	if err := instanceMgr.WritePIDFile(os.Getpid(), *port, basePath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to write PID file: %v\n", err)
	}

	fmt.Printf("\n  Engine ready at http://localhost:%d\n\n", *port)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		}
	case <-shutdown:
		fmt.Println("\nShutting down (signal received)...")
	case <-srv.ShutdownChan:
		fmt.Println("\nShutting down (API request)...")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "HTTP shutdown error: %v\n", err)
	}

	instanceMgr.RemovePIDFile()
	fmt.Println("Goodbye!")
}

// getBasePath returns the directory containing the executable, or the
// current working directory when running under `go run`/`go test`.
func getBasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return os.Getwd()
	}
	dir := filepath.Dir(exe)
	if filepath.Base(dir) == "exe" || filepath.Base(filepath.Dir(dir)) == "go-build" {
		return os.Getwd()
	}
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir), nil
	}
	return dir, nil
}

func printBanner() {
	fmt.Println()
	fmt.Println("  agentctl — orchestration control plane")
	fmt.Println()
}

// showInstanceStatus prints the running instance's status, for `-status`.
func showInstanceStatus(dataDirFlag string, port int) {
	basePath, _ := getBasePath()
	dataDir := dataDirFlag
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(basePath, dataDir)
	}
	mgr := instance.NewManager(filepath.Join(dataDir, "agentctl.pid"), filepath.Join(dataDir, "agentctl.db"), port)
	info, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if info == nil {
		fmt.Println("No agentctl instance is currently running")
		return
	}

	statusIcon := "running"
	if !info.IsResponding {
		statusIcon = "not responding"
	}
	fmt.Printf("Instance: %s\n", statusIcon)
	fmt.Printf("  PID:     %d\n", info.PID)
	fmt.Printf("  Port:    %d\n", info.Port)
	fmt.Printf("  Started: %s (%s ago)\n", info.StartTime.Format("2006-01-02 15:04:05"), time.Since(info.StartTime).Round(time.Second))
	fmt.Printf("  API:     http://localhost:%d\n", info.Port)
}

// stopInstance stops the running instance, for `-stop`/`-force-stop`.
func stopInstance(dataDirFlag string, force bool) {
	basePath, _ := getBasePath()
	dataDir := dataDirFlag
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(basePath, dataDir)
	}
	mgr := instance.NewManager(filepath.Join(dataDir, "agentctl.pid"), filepath.Join(dataDir, "agentctl.db"), 0)
	info, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if info == nil {
		fmt.Println("No agentctl instance is currently running")
		return
	}

	if force {
		fmt.Printf("Force killing process %d...\n", info.PID)
		if err := instance.KillProcess(info.PID); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to kill process: %v\n", err)
			os.Exit(1)
		}
		time.Sleep(1 * time.Second)
		mgr.RemovePIDFile()
		fmt.Println("Instance terminated")
		return
	}

	fmt.Printf("Sending graceful shutdown request to instance on port %d...\n", info.Port)
	if err := instance.SendShutdownRequest(info.Port); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to send shutdown request: %v\n", err)
		fmt.Println("Try -force-stop to force kill the process")
		os.Exit(1)
	}
	fmt.Println("Waiting for graceful shutdown...")
	if instance.WaitForPortToBeAvailable(info.Port, 5*time.Second) {
		fmt.Println("Instance stopped successfully")
	} else {
		fmt.Println("Warning: instance may still be running; try -force-stop")
	}
}

// openStore opens the SQLite-backed store at dataDir/agentctl.db.
func openStore(dataDir string) (*store.DB, error) {
	return store.Open(filepath.Join(dataDir, "agentctl.db"))
}

// hydrateState repopulates the in-memory queue and registry from the
// store, so a restarted engine picks up where the last one left off.
func hydrateState(db *store.DB, queue *tasks.Queue, registry *agents.Registry) error {
	persistedTasks, err := db.ListAllTasks()
	if err != nil {
		return fmt.Errorf("loading persisted tasks: %w", err)
	}
	for _, t := range persistedTasks {
		queue.Add(t)
	}

	persistedAgents, err := db.ListAgents()
	if err != nil {
		return fmt.Errorf("loading persisted agents: %w", err)
	}
	for _, a := range persistedAgents {
		registry.Put(a)
	}
	return nil
}

// applyFleetConfig registers any agent named in the optional fleet YAML
// overlay that isn't already present from persisted state, and persists
// newly-registered agents.
func applyFleetConfig(fleetPath string, registry *agents.Registry, db *store.DB) error {
	fleet, err := config.LoadFleetConfig(fleetPath)
	if err != nil {
		return err
	}
	for _, fa := range fleet.Agents {
		if _, err := registry.Get(fa.ID); err == nil {
			continue
		}
		a := fa.ToAgent()
		registry.Put(a)
		if err := db.SaveAgent(a); err != nil {
			return fmt.Errorf("persisting fleet agent %s: %w", a.ID, err)
		}
	}
	return nil
}

// startNATS resolves the Event Bridge's transport: an externally-run NATS
// server when natsURL is set, or an embedded one (started here and handed
// back for the caller to Shutdown) when it is empty.
func startNATS(natsURL string, natsPort int, dataDir string) (*bus.Embedded, string, error) {
	if natsURL != "" {
		return nil, natsURL, nil
	}

	embedded := bus.NewEmbedded(bus.EmbeddedConfig{
		Port:    natsPort,
		DataDir: filepath.Join(dataDir, "nats"),
	})
	if err := embedded.Start(); err != nil {
		return nil, "", fmt.Errorf("starting embedded NATS server: %w", err)
	}
	fmt.Printf("  Embedded NATS server listening at %s\n", embedded.URL())
	return embedded, embedded.URL(), nil
}

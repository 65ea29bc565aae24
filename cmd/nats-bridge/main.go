// Command nats-bridge federates the canonical event stream (internal/events,
// internal/bus) between two engine deployments' NATS buses, so a dashboard
// or alert sink attached to one deployment also sees the other's task and
// agent lifecycle events: per-direction subscription sets plus a
// recent-message dedup ring for any subject forwarded both ways.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/agentctl/engine/internal/events"
)

// every canonical event type is forwarded both ways; dedup guards against
// the bridge re-publishing its own forwarded copy back where it came from.
func bridgedSubjects() []string {
	subjects := make([]string, 0, len(events.AllTypes()))
	for _, t := range events.AllTypes() {
		subjects = append(subjects, string(t))
	}
	return subjects
}

// recentMessages tracks recently forwarded messages to prevent forward loops.
type recentMessages struct {
	mu  sync.Mutex
	ttl time.Duration
	seen map[string]time.Time
}

func newRecentMessages(ttl time.Duration) *recentMessages {
	rm := &recentMessages{seen: make(map[string]time.Time), ttl: ttl}
	go func() {
		for range time.Tick(ttl) {
			rm.cleanup()
		}
	}()
	return rm
}

func (rm *recentMessages) hash(subject string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(subject))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (rm *recentMessages) isSeen(subject string, data []byte) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, exists := rm.seen[rm.hash(subject, data)]
	return exists
}

func (rm *recentMessages) mark(subject string, data []byte) {
	rm.mu.Lock()
	rm.seen[rm.hash(subject, data)] = time.Now()
	rm.mu.Unlock()
}

func (rm *recentMessages) cleanup() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	now := time.Now()
	for hash, ts := range rm.seen {
		if now.Sub(ts) > rm.ttl {
			delete(rm.seen, hash)
		}
	}
}

func main() {
	localURL := flag.String("local", "nats://localhost:4222", "local engine's NATS URL")
	remoteURL := flag.String("remote", "nats://localhost:4223", "remote engine's NATS URL")
	flag.Parse()

	log.Println("===============================================")
	log.Println("  nats-bridge - federates two engine event buses")
	log.Println("===============================================")
	log.Printf("Local engine:  %s", *localURL)
	log.Printf("Remote engine: %s", *remoteURL)

	localConn, err := nats.Connect(*localURL, nats.Name("bridge-to-local"))
	if err != nil {
		log.Fatalf("Failed to connect to local engine NATS: %v", err)
	}
	defer localConn.Close()
	log.Println("[BRIDGE] Connected to local engine")

	remoteConn, err := nats.Connect(*remoteURL, nats.Name("bridge-to-remote"))
	if err != nil {
		log.Fatalf("Failed to connect to remote engine NATS: %v", err)
	}
	defer remoteConn.Close()
	log.Println("[BRIDGE] Connected to remote engine")

	recent := newRecentMessages(5 * time.Second)
	subCount := 0

	for _, subject := range bridgedSubjects() {
		subj := subject

		_, err := localConn.Subscribe(subj, func(msg *nats.Msg) {
			if recent.isSeen(msg.Subject, msg.Data) {
				return
			}
			recent.mark(msg.Subject, msg.Data)
			log.Printf("[LOCAL->REMOTE] %s (%d bytes)", msg.Subject, len(msg.Data))
			remoteConn.Publish(msg.Subject, msg.Data)
		})
		if err != nil {
			log.Printf("[BRIDGE] Warning: Failed to subscribe to %s on local: %v", subj, err)
		} else {
			subCount++
		}

		_, err = remoteConn.Subscribe(subj, func(msg *nats.Msg) {
			if recent.isSeen(msg.Subject, msg.Data) {
				return
			}
			recent.mark(msg.Subject, msg.Data)
			log.Printf("[REMOTE->LOCAL] %s (%d bytes)", msg.Subject, len(msg.Data))
			localConn.Publish(msg.Subject, msg.Data)
		})
		if err != nil {
			log.Printf("[BRIDGE] Warning: Failed to subscribe to %s on remote: %v", subj, err)
		} else {
			subCount++
		}
	}

	log.Printf("[BRIDGE] Active subscriptions: %d", subCount)
	log.Println("[BRIDGE] Running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[BRIDGE] Shutting down...")
}

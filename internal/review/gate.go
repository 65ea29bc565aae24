package review

import (
	"sync"

	"github.com/agentctl/engine/internal/tasks"
)

// Config holds the Code Review gate's tunable thresholds.
type Config struct {
	OllamaReviewInterval   int     // default 5
	OpusReviewInterval     int     // default 10
	QualityThreshold       float64 // default 6
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		OllamaReviewInterval: 5,
		OpusReviewInterval:   10,
		QualityThreshold:     DefaultQualityThreshold,
	}
}

// Decision is what the gate recommends doing with a just-completed task.
type Decision struct {
	ShouldReview bool
	ReviewerTier string // "haiku" or "opus"
}

// Gate holds the in-memory sampling counters: mutex-guarded monotonic
// counters, reset via an admin call.
type Gate struct {
	mu                sync.Mutex
	cfg               Config
	ollamaTaskCounter int
	allTaskCounter    int
}

// NewGate creates a Gate with the given config.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// skipSampling reports whether t is excluded from sampling outright:
// review and debug tasks, and any task not in completed status.
func skipSampling(t *tasks.Task) bool {
	switch t.TaskType {
	case tasks.TypeReview, tasks.TypeDebug:
		return true
	}
	return t.Status != tasks.StatusCompleted
}

// Sample applies the per-completion sampling rule and returns whether (and
// at what tier) a review should be scheduled. executedOnLocalTier and
// complexity describe the just-finished attempt.
func (g *Gate) Sample(t *tasks.Task, executedOnLocalTier bool, complexity float64) Decision {
	if skipSampling(t) {
		return Decision{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	decision := Decision{}

	if executedOnLocalTier {
		g.ollamaTaskCounter++
		if g.cfg.OllamaReviewInterval > 0 && g.ollamaTaskCounter%g.cfg.OllamaReviewInterval == 0 {
			decision = Decision{ShouldReview: true, ReviewerTier: "haiku"}
		}
	}

	if complexity > 5 {
		g.allTaskCounter++
		if g.cfg.OpusReviewInterval > 0 && g.allTaskCounter%g.cfg.OpusReviewInterval == 0 {
			// opus trigger takes priority when both fire on the same completion
			decision = Decision{ShouldReview: true, ReviewerTier: "opus"}
		}
	}

	return decision
}

// Counters is a read-only snapshot of the sampling counters, for
// observability and admin reset.
type Counters struct {
	OllamaTaskCounter int `json:"ollamaTaskCounter"`
	AllTaskCounter    int `json:"allTaskCounter"`
}

// GetCounters returns a snapshot.
func (g *Gate) GetCounters() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Counters{OllamaTaskCounter: g.ollamaTaskCounter, AllTaskCounter: g.allTaskCounter}
}

// Reset zeroes both counters (admin-only call).
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ollamaTaskCounter = 0
	g.allTaskCounter = 0
}

// Escalation is what happens to a task after a failed review.
type Escalation struct {
	RequeueAsPending bool
	PreferredModel   string
	MarkNeedsHuman   bool
}

// Resolve implements the review result handling: a local-tier
// review failure re-queues with a model hint; a hosted-tier failure
// escalates to a human.
func Resolve(r *CodeReview, executedTier string) Escalation {
	if r.Status != StatusNeedsFixes {
		return Escalation{}
	}
	if executedTier == "ollama" {
		return Escalation{RequeueAsPending: true, PreferredModel: "haiku"}
	}
	return Escalation{MarkNeedsHuman: true}
}

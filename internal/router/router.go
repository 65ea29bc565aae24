// Package router implements the Complexity Router: a deterministic
// heuristic that scores a task's difficulty and proposes an execution
// tier, preferred agent type and estimated cost. The Router never
// mutates task or agent state — it only proposes; the Assigner is the
// sole writer.
package router

import (
	"regexp"
	"strings"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/tasks"
)

// Tier is a model/execution tier name.
type Tier string

const (
	TierOllama Tier = "ollama"
	TierHaiku  Tier = "haiku"
	TierSonnet Tier = "sonnet"
	TierOpus   Tier = "opus"
)

var numberedStepPattern = regexp.MustCompile(`(?i)step\s*\d+\s*:`)

// keyword weight tables below.
var (
	heavyKeywords = []string{"multi-file", "architecture", "refactor", "design", "integrate", "complex"}
	midKeywords   = []string{"test", "debug", "fix", "api", "database", "async", "validate", "verify"}
	lightKeywords = []string{"create", "simple", "basic"}

	taskTypeWeight = map[tasks.Type]float64{
		tasks.TypeCode:     1,
		tasks.TypeTest:     1.5,
		tasks.TypeRefactor: 2,
		tasks.TypeReview:   2,
		tasks.TypeDebug:    1.5,
	}
)

// Score computes the deterministic heuristic complexity for t, clamped
// to [1, 10]. It is a pure function of the task's fields.
func Score(t *tasks.Task) float64 {
	text := strings.ToLower(t.Title + " " + t.Description)

	score := 1.0
	score += 0.5 * float64(len(numberedStepPattern.FindAllString(text, -1)))

	for _, kw := range heavyKeywords {
		if strings.Contains(text, kw) {
			score += 2.0
		}
	}
	for _, kw := range midKeywords {
		if strings.Contains(text, kw) {
			score += 1.0
		}
	}
	for _, kw := range lightKeywords {
		if strings.Contains(text, kw) {
			score -= 0.5
		}
	}

	score += taskTypeWeight[t.TaskType]
	score += float64(t.Priority) * 0.05
	score += float64(t.CurrentIteration) * 1.5

	return clamp(score, 1, 10)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Route is the Router's proposal for one task.
type Route struct {
	Complexity    float64               `json:"complexity"`
	ModelTier     Tier                  `json:"modelTier"`
	AgentType     agents.Type           `json:"agentType"`
	AgentID       string                `json:"agentId,omitempty"`
	EstimatedCost float64               `json:"estimatedCost"`
	Confidence    float64               `json:"confidence"`
	Reason        string                `json:"reason"`
	Source        tasks.ComplexitySource `json:"complexitySource"`
}

// HostedEstimator issues a single bounded call to a hosted cheap tier and
// returns its own complexity estimate, for the second-opinion ("dual")
// path. Implementations must themselves enforce the bound (timeout,
// token budget); the Router treats any error as "no opinion".
type HostedEstimator interface {
	EstimateComplexity(t *tasks.Task) (float64, error)
}

// DualBandMin and DualBandMax bound the complexity range in which the
// optional second-opinion path is consulted.
const (
	DualBandMin = 4.0
	DualBandMax = 7.0
)

// Router proposes a Route for a task, consulting an agent registry for
// idle-capacity fallback and, optionally, a hosted second opinion.
type Router struct {
	agents   *agents.Registry
	hosted   HostedEstimator
	dualBand func(complexity float64) bool
}

// New creates a Router. hosted may be nil to disable the second-opinion
// path entirely.
func New(registry *agents.Registry, hosted HostedEstimator) *Router {
	return &Router{
		agents: registry,
		hosted: hosted,
		dualBand: func(c float64) bool {
			return c >= DualBandMin && c <= DualBandMax
		},
	}
}

// Route scores t, picks a tier and an idle agent to serve it, and
// returns the proposal. It never mutates t, the registry, or any agent.
func (r *Router) Route(t *tasks.Task) (Route, error) {
	complexity := Score(t)
	source := tasks.ComplexitySourceRouter

	if r.hosted != nil && r.dualBand(complexity) {
		if hostedScore, err := r.hosted.EstimateComplexity(t); err == nil {
			complexity = max(complexity, hostedScore)
			source = tasks.ComplexitySourceDual
		}
		// a failed second opinion falls back to the heuristic value silently
	}

	tier, agentType, cost := tierFor(complexity, t.TaskType)

	if t.RequiredAgent != "" {
		requiredType := agents.Type(t.RequiredAgent)
		if a := r.agents.IdleOfType(requiredType); a != nil {
			return Route{
				Complexity: complexity, ModelTier: tier, AgentType: a.AgentType, AgentID: a.ID,
				EstimatedCost: cost, Confidence: 1.0, Reason: "task explicitly requires agent type " + string(requiredType), Source: source,
			}, nil
		}
		if a := r.agents.IdleOfType(agents.TypeCTO); a != nil {
			return Route{
				Complexity: complexity, ModelTier: tier, AgentType: a.AgentType, AgentID: a.ID,
				EstimatedCost: cost, Confidence: 1.0, Reason: "task explicitly requires agent type " + string(requiredType) + ", fell back to escalation agent", Source: source,
			}, nil
		}
		return Route{}, allAgentsBusyError(requiredType)
	}

	if a := r.agents.IdleOfType(agentType); a != nil {
		return Route{
			Complexity: complexity, ModelTier: tier, AgentType: agentType, AgentID: a.ID,
			EstimatedCost: cost, Confidence: confidenceFor(complexity), Reason: "tier match", Source: source,
		}, nil
	}

	if a := r.agents.IdleOfType(agents.TypeCTO); a != nil {
		return Route{
			Complexity: complexity, ModelTier: tier, AgentType: agents.TypeCTO, AgentID: a.ID,
			EstimatedCost: cost, Confidence: confidenceFor(complexity), Reason: "escalation agent fallback", Source: source,
		}, nil
	}

	return Route{}, allAgentsBusyError(agentType)
}

// tierFor implements the complexity-to-tier table.
func tierFor(complexity float64, taskType tasks.Type) (Tier, agents.Type, float64) {
	switch {
	case complexity < 7:
		return TierOllama, agents.TypeCoder, 0
	case complexity < 9:
		return TierOllama, agents.TypeCoder, 0 // large-context variant, same tier/cost
	case taskType == tasks.TypeReview || taskType == tasks.TypeRefactor:
		return TierSonnet, agents.TypeCTO, 0.005
	default:
		return TierHaiku, agents.TypeQA, 0.001
	}
}

// confidenceFor is a monotonic function of how far complexity sits from a
// tier boundary; the Router never claims full certainty for a heuristic
// score, only for an explicit requiredAgent override.
func confidenceFor(complexity float64) float64 {
	frac := complexity - float64(int(complexity))
	if frac > 0.5 {
		frac = 1 - frac
	}
	return clamp(0.7+frac, 0.7, 0.95)
}

func allAgentsBusyError(agentType agents.Type) error {
	return apperr.New(apperr.ResourceBusy, "all agents busy (no idle %s or cto agent)", agentType)
}

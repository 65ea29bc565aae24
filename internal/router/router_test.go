package router

import (
	"errors"
	"strings"
	"testing"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/tasks"
)

func TestScoreClampsToBounds(t *testing.T) {
	low := tasks.New("create a file", "simple basic create", tasks.TypeCode, 1)
	if s := Score(low); s < 1 || s > 10 {
		t.Errorf("expected score in [1,10], got %v", s)
	}

	high := tasks.New("refactor everything", "multi-file architecture refactor design integrate complex", tasks.TypeRefactor, 10)
	high.CurrentIteration = 5
	if s := Score(high); s != 10 {
		t.Errorf("expected heavy task to clamp at 10, got %v", s)
	}
}

func TestScoreNumberedSteps(t *testing.T) {
	base := tasks.New("t", "do the thing", tasks.TypeCode, 1)
	stepped := tasks.New("t", "step 1: do a. step 2: do b. step 3: do c.", tasks.TypeCode, 1)
	if Score(stepped) <= Score(base) {
		t.Errorf("expected numbered steps to raise the score: base=%v stepped=%v", Score(base), Score(stepped))
	}
}

func TestTierForBoundaries(t *testing.T) {
	tier, agentType, _ := tierFor(6.9, tasks.TypeCode)
	if tier != TierOllama || agentType != agents.TypeCoder {
		t.Errorf("expected ollama/coder below 7, got %v/%v", tier, agentType)
	}

	tier, agentType, _ = tierFor(9.5, tasks.TypeCode)
	if tier != TierHaiku || agentType != agents.TypeQA {
		t.Errorf("expected haiku/qa for high-complexity code, got %v/%v", tier, agentType)
	}

	tier, agentType, _ = tierFor(9.5, tasks.TypeReview)
	if tier != TierSonnet || agentType != agents.TypeCTO {
		t.Errorf("expected sonnet/cto for high-complexity review, got %v/%v", tier, agentType)
	}
}

func TestRouteRequiredAgentOverride(t *testing.T) {
	reg := agents.NewRegistry()
	cto := agents.New("agent-9", "Chief", agents.TypeCTO)
	reg.Put(cto)

	r := New(reg, nil)
	task := tasks.New("t", "trivial", tasks.TypeCode, 1)
	task.RequiredAgent = "cto"

	route, err := r.Route(task)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.AgentType != agents.TypeCTO || route.Confidence != 1.0 {
		t.Errorf("expected route matched by agent type cto with confidence 1.0, got %+v", route)
	}
	if !strings.Contains(route.Reason, "explicitly requires") {
		t.Errorf("expected reason to mention explicit requirement, got %q", route.Reason)
	}
}

func TestRouteRequiredAgentIgnoresMatchingID(t *testing.T) {
	reg := agents.NewRegistry()
	// This agent's id happens to equal the required type string, but its
	// AgentType does not match; it must not be selected.
	impostor := agents.New("cto", "Impostor", agents.TypeCoder)
	reg.Put(impostor)

	r := New(reg, nil)
	task := tasks.New("t", "trivial", tasks.TypeCode, 1)
	task.RequiredAgent = "cto"

	_, err := r.Route(task)
	if !apperr.Is(err, apperr.ResourceBusy) {
		t.Errorf("expected all-agents-busy error since no idle agent of type cto exists, got %v", err)
	}
}

func TestRouteFallsBackToEscalationAgent(t *testing.T) {
	reg := agents.NewRegistry()
	cto := agents.New("a-cto", "CTO", agents.TypeCTO)
	reg.Put(cto)

	r := New(reg, nil)
	task := tasks.New("t", "simple create", tasks.TypeCode, 1) // routes to coder tier, no coder idle
	route, err := r.Route(task)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.AgentID != "a-cto" || route.AgentType != agents.TypeCTO {
		t.Errorf("expected fallback to cto agent, got %+v", route)
	}
}

func TestRouteAllAgentsBusy(t *testing.T) {
	reg := agents.NewRegistry()
	r := New(reg, nil)
	task := tasks.New("t", "simple create", tasks.TypeCode, 1)

	_, err := r.Route(task)
	if !apperr.Is(err, apperr.ResourceBusy) {
		t.Errorf("expected ResourceBusy error, got %v", err)
	}
}

type stubHosted struct {
	score float64
	err   error
}

func (s stubHosted) EstimateComplexity(t *tasks.Task) (float64, error) {
	return s.score, s.err
}

func TestRouteDualPathUsesMaxAndTagsSource(t *testing.T) {
	reg := agents.NewRegistry()
	reg.Put(agents.New("a1", "Coder", agents.TypeCoder))
	reg.Put(agents.New("q1", "QA", agents.TypeQA))

	r := New(reg, stubHosted{score: 9.0})
	task := tasks.New("t", "validate the api async", tasks.TypeTest, 5) // lands in [4,7] band

	route, err := r.Route(task)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Source != tasks.ComplexitySourceDual {
		t.Errorf("expected dual source when in band, got %v", route.Source)
	}
	if route.Complexity < 9.0 {
		t.Errorf("expected max(heuristic, hosted) >= 9.0, got %v", route.Complexity)
	}
}

func TestRouteDualPathFailureFallsBackSilently(t *testing.T) {
	reg := agents.NewRegistry()
	reg.Put(agents.New("a1", "Coder", agents.TypeCoder))

	r := New(reg, stubHosted{err: errors.New("timeout")})
	task := tasks.New("t", "validate the api async", tasks.TypeTest, 5)

	route, err := r.Route(task)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Source != tasks.ComplexitySourceRouter {
		t.Errorf("expected fallback to router source on hosted failure, got %v", route.Source)
	}
}

func TestGetFixDecision(t *testing.T) {
	if d := GetFixDecision(1); d.Escalate {
		t.Error("expected first attempt not to escalate")
	}
	if d := GetFixDecision(2); !d.Escalate {
		t.Error("expected second attempt to escalate")
	}
	if d := GetFixDecision(3); d.Tier != TierHaiku {
		t.Errorf("expected haiku tier regardless of attempt index, got %v", d.Tier)
	}
}

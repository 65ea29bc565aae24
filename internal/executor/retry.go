package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/agentctl/engine/internal/rpc"
	"github.com/agentctl/engine/internal/tasks"
)

// RetryConfig holds the Auto-Retry Ladder's tunables.
type RetryConfig struct {
	Enabled           bool
	MaxOllamaRetries  int
	MaxRemoteRetries  int
	MaxHaikuRetries   int
	MaxTotalRetries   int // hard cap across all phases, default 3
	ValidationTimeout time.Duration
	RemoteConfigured  bool // whether a remote local-style endpoint exists
}

// DefaultRetryConfig returns the documented defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:           true,
		MaxOllamaRetries:  1,
		MaxRemoteRetries:  1,
		MaxHaikuRetries:   1,
		MaxTotalRetries:   3,
		ValidationTimeout: 15 * time.Second,
	}
}

// RetryOutcome is what the ladder decided after running to completion or
// exhaustion.
type RetryOutcome struct {
	Validated       bool
	Phase           string
	Attempts        int
	FinalError      string
	ExecutionResult rpc.ExecuteResult
}

// RunAutoRetryLadder implements the three-phase retry ladder, invoked
// before handleTaskCompletion finalizes success whenever
// task.ValidationCommand is set. It never exceeds MaxTotalRetries
// attempts across all phases, regardless of per-phase budgets.
func RunAutoRetryLadder(ctx context.Context, client rpc.Client, cfg RetryConfig, task *tasks.Task) RetryOutcome {
	vctx, cancel := context.WithTimeout(ctx, cfg.ValidationTimeout)
	v, err := client.RunValidation(vctx, task.ValidationCmd, task.Language)
	cancel()
	if err == nil && v.Success {
		return RetryOutcome{Validated: true, Phase: "phase0"}
	}

	lastErr := validationErrorString(v, err)
	attempts := 0
	var lastExec rpc.ExecuteResult

	runPhase := func(phase string, maxRetries int, model string, useHosted bool) (RetryOutcome, bool) {
		for i := 0; i < maxRetries && attempts < cfg.MaxTotalRetries; i++ {
			attempts++
			desc := enrichedDescription(task, lastErr)
			execRes, execErr := client.Execute(ctx, desc, model, useHosted)
			if execErr != nil {
				lastErr = execErr.Error()
				continue
			}
			lastExec = execRes

			vctx, cancel := context.WithTimeout(ctx, cfg.ValidationTimeout)
			v, verr := client.RunValidation(vctx, task.ValidationCmd, task.Language)
			cancel()
			if verr == nil && v.Success {
				return RetryOutcome{Validated: true, Phase: phase, Attempts: attempts, ExecutionResult: execRes}, true
			}
			lastErr = validationErrorString(v, verr)
		}
		return RetryOutcome{}, false
	}

	if out, ok := runPhase("phase1", cfg.MaxOllamaRetries, localModelFor(task.Complexity), false); ok {
		return out
	}
	if cfg.RemoteConfigured {
		if out, ok := runPhase("phase2", cfg.MaxRemoteRetries, "remote-local", false); ok {
			return out
		}
	}
	if out, ok := runPhase("phase3", cfg.MaxHaikuRetries, "haiku", true); ok {
		return out
	}

	return RetryOutcome{Validated: false, Attempts: attempts, FinalError: lastErr, ExecutionResult: lastExec}
}

// localModelFor picks the context-window variant: harder
// tasks get the larger context budget.
func localModelFor(complexity float64) string {
	if complexity >= 7 {
		return "ollama-32k"
	}
	return "ollama-16k"
}

// enrichedDescription builds the retry prompt: the
// original description plus the failing error and a fix instruction.
// The "failed-code dump" itself comes from the task's persisted
// workspace file, which the caller is expected to have re-read; here we
// only append what the ladder itself knows.
func enrichedDescription(task *tasks.Task, validationError string) string {
	return fmt.Sprintf("%s\n\n--- Previous attempt failed validation ---\nError: %s\nFix the code so the validation command passes.",
		task.Description, validationError)
}

func validationErrorString(v rpc.ValidationResult, err error) string {
	if err != nil {
		return err.Error()
	}
	return v.Output
}

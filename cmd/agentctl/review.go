package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/agentctl/engine/internal/bus"
	"github.com/agentctl/engine/internal/events"
	"github.com/agentctl/engine/internal/executor"
	"github.com/agentctl/engine/internal/review"
	"github.com/agentctl/engine/internal/rpc"
	"github.com/agentctl/engine/internal/store"
	"github.com/agentctl/engine/internal/tasks"
)

// reviewRPCTimeout bounds the reviewer RPC called from the Code Review
// gate's background hook.
const reviewRPCTimeout = 30 * time.Second

// newReviewHook builds the Executor's ReviewHook: it samples the gate,
// and when a review is due, asks a reviewer for a verdict over the agent
// runtime RPC, persists it, and resolves the escalation (requeue with a
// model hint, or mark needing a human) before publishing the outcome.
func newReviewHook(gate *review.Gate, client rpc.Client, db *store.DB, queue *tasks.Queue, eventBus *events.Bus, external *bus.Client) executor.ReviewHook {
	return func(t *tasks.Task, executedOnLocalTier bool) {
		decision := gate.Sample(t, executedOnLocalTier, t.Complexity)
		if !decision.ShouldReview {
			return
		}

		verdict, err := requestReview(client, t, decision.ReviewerTier)
		if err != nil {
			log.Printf("[REVIEW] reviewer RPC failed for task %s: %v", t.ID, err)
			return
		}
		verdict.Evaluate(review.DefaultQualityThreshold)

		if err := db.SaveReview(verdict); err != nil {
			log.Printf("[REVIEW] failed to persist review %s for task %s: %v", verdict.ID, t.ID, err)
		}
		eventBus.Publish(events.New(events.CodeReviewCompleted, map[string]any{"review": verdict}))
		if err := external.Publish(events.New(events.CodeReviewCompleted, map[string]any{"taskId": t.ID, "reviewerTier": verdict.ReviewerTier})); err != nil {
			log.Printf("[REVIEW] external publish of code_review_completed failed: %v", err)
		}

		executedTier := "ollama"
		if !executedOnLocalTier {
			executedTier = decision.ReviewerTier
		}

		escalation := review.Resolve(verdict, executedTier)
		switch {
		case escalation.RequeueAsPending:
			requeueAfterReview(t, verdict, escalation, db, queue, eventBus, external)
		case escalation.MarkNeedsHuman:
			escalateToHuman(t, verdict, db, queue, eventBus, external)
		}
	}
}

// requestReview asks the reviewer tier named by decision.ReviewerTier, via
// the same narrow agent-runtime RPC interface the Executor uses, to grade
// a just-completed task, and decodes its structured verdict.
func requestReview(client rpc.Client, t *tasks.Task, reviewerTier string) (*review.CodeReview, error) {
	ctx, cancel := context.WithTimeout(context.Background(), reviewRPCTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Review the following completed task for correctness and quality. Respond with JSON "+
			"{qualityScore, findings:[{severity,category,description,suggestion}], hasSyntaxErrors, tokensIn, tokensOut, cost}.\n\n"+
			"Title: %s\nDescription: %s\nResult: %v", t.Title, t.Description, t.Result)

	result, err := client.Execute(ctx, prompt, reviewerTier, true)
	if err != nil {
		return nil, fmt.Errorf("reviewer RPC for task %s: %w", t.ID, err)
	}

	var payload struct {
		QualityScore    float64          `json:"qualityScore"`
		Findings        []review.Finding `json:"findings"`
		HasSyntaxErrors bool             `json:"hasSyntaxErrors"`
		TokensIn        int              `json:"tokensIn"`
		TokensOut       int              `json:"tokensOut"`
		Cost            float64          `json:"cost"`
	}
	if err := json.Unmarshal([]byte(result.Output), &payload); err != nil {
		return nil, fmt.Errorf("decoding reviewer output for task %s: %w", t.ID, err)
	}

	return &review.CodeReview{
		ID:              uuid.NewString(),
		TaskID:          t.ID,
		ReviewerTier:    reviewerTier,
		QualityScore:    payload.QualityScore,
		Findings:        payload.Findings,
		HasSyntaxErrors: payload.HasSyntaxErrors,
		TokensIn:        payload.TokensIn,
		TokensOut:       payload.TokensOut,
		Cost:            payload.Cost,
		CreatedAt:       time.Now(),
	}, nil
}

// requeueAfterReview implements the local-tier failed-review edge:
// completed -> pending with a model hint attached for the next assignment.
func requeueAfterReview(t *tasks.Task, verdict *review.CodeReview, escalation review.Escalation, db *store.DB, queue *tasks.Queue, eventBus *events.Bus, external *bus.Client) {
	if err := t.TransitionTo(tasks.StatusPending); err != nil {
		log.Printf("[REVIEW] cannot requeue task %s after failed review: %v", t.ID, err)
		return
	}
	t.PreferredModel = escalation.PreferredModel
	t.ReviewFindings = verdict.Findings
	t.AssignedAgentID = ""
	t.AssignedAt = nil

	if err := db.SaveTask(t); err != nil {
		log.Printf("[REVIEW] failed to persist requeue of task %s: %v", t.ID, err)
		return
	}
	queue.Update(t)

	eventBus.Publish(events.New(events.TaskUpdated, map[string]any{"task": t}))
	if err := external.Publish(events.New(events.TaskUpdated, map[string]any{"taskId": t.ID, "status": string(t.Status)})); err != nil {
		log.Printf("[REVIEW] external publish of task_updated failed: %v", err)
	}
}

// escalateToHuman implements the hosted-tier failed-review edge: the task
// is marked needing a human, off the automated ladder entirely.
func escalateToHuman(t *tasks.Task, verdict *review.CodeReview, db *store.DB, queue *tasks.Queue, eventBus *events.Bus, external *bus.Client) {
	if err := t.TransitionTo(tasks.StatusNeedsHuman); err != nil {
		log.Printf("[REVIEW] cannot mark task %s needing human review: %v", t.ID, err)
		return
	}
	t.NeedsHumanReview = true
	t.ReviewFindings = verdict.Findings

	if err := db.SaveTask(t); err != nil {
		log.Printf("[REVIEW] failed to persist human-review escalation of task %s: %v", t.ID, err)
		return
	}
	queue.Update(t)

	eventBus.Publish(events.New(events.TaskNeedsHumanReview, map[string]any{"task": t}))
	if err := external.Publish(events.New(events.TaskNeedsHumanReview, map[string]any{"taskId": t.ID, "reviewerTier": verdict.ReviewerTier})); err != nil {
		log.Printf("[REVIEW] external publish of task_needs_human_review failed: %v", err)
	}
}

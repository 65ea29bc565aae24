// Package review implements the Code Review gate: sampling counters that
// decide when a completed task gets reviewed, and the escalation rules
// applied to a reviewer's verdict.
package review

import "time"

// Severity is how serious a review finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Status is the outcome of a review.
type Status string

const (
	StatusApproved    Status = "approved"
	StatusNeedsFixes  Status = "needs_fixes"
)

// Finding is one issue a reviewer reported.
type Finding struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// CodeReview is a reviewer's verdict on one task.
type CodeReview struct {
	ID              string    `json:"id"`
	TaskID          string    `json:"taskId"`
	ReviewerTier    string    `json:"reviewerTier"`
	QualityScore    float64   `json:"qualityScore"` // 0-10
	Findings        []Finding `json:"findings"`
	HasSyntaxErrors bool      `json:"hasSyntaxErrors"`
	TokensIn        int       `json:"tokensIn"`
	TokensOut       int       `json:"tokensOut"`
	Cost            float64   `json:"cost"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// DefaultQualityThreshold is the minimum passing quality score
// (REVIEW_QUALITY_THRESHOLD).
const DefaultQualityThreshold = 6.0

// Failed reports whether this review fails the gate: quality score below
// threshold, any critical finding, or syntax errors detected.
func (r *CodeReview) Failed(threshold float64) bool {
	if r.QualityScore < threshold {
		return true
	}
	if r.HasSyntaxErrors {
		return true
	}
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Evaluate sets Status based on Failed and returns the CodeReview for
// chaining.
func (r *CodeReview) Evaluate(threshold float64) *CodeReview {
	if r.Failed(threshold) {
		r.Status = StatusNeedsFixes
	} else {
		r.Status = StatusApproved
	}
	return r
}

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agentctl/engine/internal/apperr"
	"github.com/agentctl/engine/internal/review"
)

// SaveReview inserts a CodeReview row (reviews are never updated in place).
func (db *DB) SaveReview(r *review.CodeReview) error {
	findings, err := json.Marshal(r.Findings)
	if err != nil {
		return fmt.Errorf("marshaling review findings: %w", err)
	}
	const q = `
INSERT INTO code_reviews (id, task_id, reviewer_tier, quality_score, findings, has_syntax_errors,
	tokens_in, tokens_out, cost, status, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
`
	_, err = db.conn.Exec(q, r.ID, r.TaskID, r.ReviewerTier, r.QualityScore, string(findings), r.HasSyntaxErrors,
		r.TokensIn, r.TokensOut, r.Cost, string(r.Status), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving review %s: %w", r.ID, err)
	}
	return nil
}

// GetReview loads one review by id.
func (db *DB) GetReview(id string) (*review.CodeReview, error) {
	row := db.conn.QueryRow(`SELECT id, task_id, reviewer_tier, quality_score, findings, has_syntax_errors,
		tokens_in, tokens_out, cost, status, created_at FROM code_reviews WHERE id = ?`, id)
	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("review %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListReviewsByTask returns every review recorded for taskID, oldest first.
func (db *DB) ListReviewsByTask(taskID string) ([]*review.CodeReview, error) {
	rows, err := db.conn.Query(`SELECT id, task_id, reviewer_tier, quality_score, findings, has_syntax_errors,
		tokens_in, tokens_out, cost, status, created_at FROM code_reviews WHERE task_id = ? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing reviews for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []*review.CodeReview
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReview(row scannable) (*review.CodeReview, error) {
	var r review.CodeReview
	var findings string
	err := row.Scan(&r.ID, &r.TaskID, &r.ReviewerTier, &r.QualityScore, &findings, &r.HasSyntaxErrors,
		&r.TokensIn, &r.TokensOut, &r.Cost, &r.Status, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if findings != "" {
		if err := json.Unmarshal([]byte(findings), &r.Findings); err != nil {
			return nil, fmt.Errorf("decoding review findings: %w", err)
		}
	}
	return &r, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tradematch/backend/internal/models"
)

type ScoreRepo struct {
	db DB
}

func NewScoreRepo(db DB) *ScoreRepo {
	return &ScoreRepo{db: db}
}

// Upsert persists the score idempotently, keyed by job id. Rescoring a job
// replaces the previous row.
func (r *ScoreRepo) Upsert(ctx context.Context, s *models.QualificationScore) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO qualification_scores (job_id, budget_score, detail_score, urgency_score, trust_score, location_score, overall, tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			budget_score = EXCLUDED.budget_score,
			detail_score = EXCLUDED.detail_score,
			urgency_score = EXCLUDED.urgency_score,
			trust_score = EXCLUDED.trust_score,
			location_score = EXCLUDED.location_score,
			overall = EXCLUDED.overall,
			tier = EXCLUDED.tier,
			calculated_at = now()
		RETURNING calculated_at
	`, s.JobID, s.BudgetScore, s.DetailScore, s.UrgencyScore, s.TrustScore, s.LocationScore, s.Overall, s.Tier).Scan(&s.CalculatedAt)
}

func (r *ScoreRepo) Get(ctx context.Context, jobID uuid.UUID) (*models.QualificationScore, error) {
	var s models.QualificationScore
	err := r.db.QueryRow(ctx, `
		SELECT job_id, budget_score, detail_score, urgency_score, trust_score, location_score, overall, tier, calculated_at
		FROM qualification_scores WHERE job_id = $1
	`, jobID).Scan(&s.JobID, &s.BudgetScore, &s.DetailScore, &s.UrgencyScore, &s.TrustScore, &s.LocationScore, &s.Overall, &s.Tier, &s.CalculatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("score for job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("get score: %w", err)
	}
	return &s, nil
}

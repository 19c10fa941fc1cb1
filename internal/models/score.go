package models

import (
	"time"

	"github.com/google/uuid"
)

// Quality tiers derived from the aggregate qualification score.
const (
	TierPremium  = "premium"
	TierStandard = "standard"
	TierBasic    = "basic"
)

// QualificationScore is the 1:1 quality assessment of a Job. Each sub-score is
// 0–20 and the overall score is their 0–100 sum.
type QualificationScore struct {
	JobID         uuid.UUID `json:"job_id"`
	BudgetScore   int       `json:"budget_score"`
	DetailScore   int       `json:"detail_score"`
	UrgencyScore  int       `json:"urgency_score"`
	TrustScore    int       `json:"trust_score"`
	LocationScore int       `json:"location_score"`
	Overall       int       `json:"overall"`
	Tier          string    `json:"tier"`
	CalculatedAt  time.Time `json:"calculated_at"`
}

// TierForScore maps an aggregate score to its quality tier.
func TierForScore(overall int) string {
	if overall >= 80 {
		return TierPremium
	}
	if overall >= 60 {
		return TierStandard
	}
	return TierBasic
}

// VendorCountForTier is the number of vendors a job of the given tier is
// offered to. Better leads justify more competition.
func VendorCountForTier(tier string) int {
	switch tier {
	case TierPremium:
		return 5
	case TierStandard:
		return 4
	default:
		return 3
	}
}

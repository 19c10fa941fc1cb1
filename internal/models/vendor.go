package models

import (
	"time"

	"github.com/google/uuid"
)

type Vendor struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Postcode string    `json:"postcode"`
	// Services is the list of trade categories the vendor offers.
	Services []string `json:"services"`
	Active   bool     `json:"active"`
	Verified bool     `json:"verified"`

	// BalancePence is a cached projection of the vendor's ledger entries.
	// It is mutated only by the credit ledger.
	BalancePence int64 `json:"balance_pence"`

	// Lead preferences. Nil means no preference.
	MinBudgetPence  *int64 `json:"min_budget_pence,omitempty"`
	MaxBudgetPence  *int64 `json:"max_budget_pence,omitempty"`
	MinQualityScore *int   `json:"min_quality_score,omitempty"`

	// Standing metrics, maintained outside this core.
	ReputationScore  float64 `json:"reputation_score"`   // 0–100
	WinRate          float64 `json:"win_rate"`           // 0–1
	AvgRating        float64 `json:"avg_rating"`         // 0–5
	AvgResponseHours float64 `json:"avg_response_hours"` // 0 when unknown

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Offer states. All transitions out of "offered" are terminal; "accepted" may
// additionally gain the refunded flag as a compensating action.
const (
	OfferStateOffered  = "offered"
	OfferStateAccepted = "accepted"
	OfferStateDeclined = "declined"
	OfferStateExpired  = "expired"
)

// MatchBreakdown is the per-factor decomposition of an offer's match score.
// Each factor is 0–20; the total is their 0–100 sum.
type MatchBreakdown struct {
	Distance    int `json:"distance"`
	Specialty   int `json:"specialty"`
	Budget      int `json:"budget"`
	Performance int `json:"performance"`
	Rotation    int `json:"rotation"`
}

func (b MatchBreakdown) Total() int {
	return b.Distance + b.Specialty + b.Budget + b.Performance + b.Rotation
}

// Offer is one vendor's opportunity to unlock a job. The (JobID, VendorID)
// pair is unique, enforced by a database constraint.
type Offer struct {
	ID         uuid.UUID      `json:"id"`
	JobID      uuid.UUID      `json:"job_id"`
	VendorID   uuid.UUID      `json:"vendor_id"`
	MatchScore int            `json:"match_score"`
	Breakdown  MatchBreakdown `json:"breakdown"`
	// DistanceMiles is the vendor-to-job distance, 0 when unknown.
	DistanceMiles float64 `json:"distance_miles"`
	// Rank is the offer's priority among the job's offers, 1 = best match.
	Rank       int    `json:"rank"`
	PricePence int64  `json:"price_pence"`
	State      string `json:"state"`

	Charged       bool       `json:"charged"`
	Refunded      bool       `json:"refunded"`
	RefundPence   *int64     `json:"refund_pence,omitempty"`
	RefundReason  *string    `json:"refund_reason,omitempty"`
	DeclineReason *string    `json:"decline_reason,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// ExpiredBy reports whether the offer has passed its expiry at the given
// instant. Lazy reads and the periodic sweep must both use this cutoff so the
// two cannot disagree about a racing accept.
func (o *Offer) ExpiredBy(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

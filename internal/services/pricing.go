package services

import (
	"strings"

	"github.com/tradematch/backend/internal/config"
	"github.com/tradematch/backend/internal/models"
)

// defaultBudgetPence stands in for the tier lookup when a job carries no
// budget at all.
const defaultBudgetPence int64 = 50_000

// PriceQuote is a lead price with its full breakdown, so vendors can see
// what they are paying for.
type PriceQuote struct {
	PricePence   int64   `json:"price_pence"`
	BasePence    int64   `json:"base_pence"`
	CategoryMult float64 `json:"category_mult"`
	LocationMult float64 `json:"location_mult"`
	QualityMult  float64 `json:"quality_mult"`
	RawPence     int64   `json:"raw_pence"`
}

// PricingEngine turns a job and its qualification score into a bounded lead
// price. It is a pure function over the price book.
type PricingEngine struct {
	Table config.Pricing
}

func NewPricingEngine(table config.Pricing) *PricingEngine {
	return &PricingEngine{Table: table}
}

// Price computes base × category × location × quality, rounds to the nearest
// half unit, then clamps to the platform floor and ceiling.
func (e *PricingEngine) Price(job *models.Job, score *models.QualificationScore) *PriceQuote {
	base := e.basePrice(job.BudgetMidpoint())
	catMult := lookupMult(e.Table.CategoryMults, strings.ToLower(job.Category))
	locMult := lookupMult(e.Table.LocationMults, locationPrefix(job.Postcode))
	qualMult := qualityMultiplier(score.Tier)

	raw := int64(float64(base) * catMult * locMult * qualMult)
	price := roundToHalfUnit(raw)
	if price < e.Table.FloorPence {
		price = e.Table.FloorPence
	}
	if price > e.Table.CeilingPence {
		price = e.Table.CeilingPence
	}

	return &PriceQuote{
		PricePence:   price,
		BasePence:    base,
		CategoryMult: catMult,
		LocationMult: locMult,
		QualityMult:  qualMult,
		RawPence:     raw,
	}
}

// basePrice picks the tier whose band contains the budget midpoint. On
// overlapping bounds the tier with the highest minimum wins.
func (e *PricingEngine) basePrice(midpoint int64) int64 {
	if midpoint <= 0 {
		midpoint = defaultBudgetPence
	}
	base := e.Table.BasePence
	bestMin := int64(-1)
	for _, tier := range e.Table.BudgetTiers {
		if tier.MinBudgetPence > midpoint {
			continue
		}
		if tier.MaxBudgetPence != 0 && tier.MaxBudgetPence < midpoint {
			continue
		}
		if tier.MinBudgetPence > bestMin {
			bestMin = tier.MinBudgetPence
			base = tier.BasePence
		}
	}
	return base
}

// lookupMult returns the table multiplier, or neutral 1.0 when the key is
// absent. Pricing degrades instead of failing.
func lookupMult(table map[string]float64, key string) float64 {
	if m, ok := table[key]; ok && m > 0 {
		return m
	}
	return 1.0
}

func qualityMultiplier(tier string) float64 {
	switch tier {
	case models.TierPremium:
		return 1.30
	case models.TierBasic:
		return 0.80
	default:
		return 1.00
	}
}

// locationPrefix extracts the leading letters of a UK postcode, uppercased:
// "SW1A 1AA" yields "SW".
func locationPrefix(postcode string) string {
	end := 0
	for end < len(postcode) {
		c := postcode[end]
		if !('A' <= c && c <= 'Z' || 'a' <= c && c <= 'z') {
			break
		}
		end++
	}
	return strings.ToUpper(postcode[:end])
}

// roundToHalfUnit rounds to the nearest 50 pence, halves up.
func roundToHalfUnit(pence int64) int64 {
	if pence < 0 {
		return 0
	}
	return (pence + 25) / 50 * 50
}

// RefundFraction maps a refund reason to the fraction of the charge that is
// returned automatically. ok is false for reasons priced by the operator.
func RefundFraction(reason string) (fraction float64, ok bool) {
	switch reason {
	case models.RefundDuplicateCharge, models.RefundServiceNotDelivered, models.RefundFraudSuspected:
		return 1.0, true
	case models.RefundVendorDispute:
		return 0.75, true
	case models.RefundQualityIssue, models.RefundPricingError:
		return 0.5, true
	default:
		return 0, false
	}
}

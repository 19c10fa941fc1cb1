package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradematch/backend/internal/models"
)

// rotationWindow is the trailing period over which a vendor's offer volume
// counts against their rotation score.
const rotationWindow = 7 * 24 * time.Hour

// relatedServices maps a requested trade to vendor service names that cover
// it without naming it exactly.
var relatedServices = map[string][]string{
	"plumbing":   {"plumber", "heating", "boiler"},
	"electrical": {"electrician", "electric"},
	"building":   {"builder", "construction", "renovation"},
	"carpentry":  {"carpenter", "joiner", "joinery"},
}

// VendorFinder is the candidate-selection interface required for matching.
type VendorFinder interface {
	FindCandidates(ctx context.Context, category string, qualityScore int, minBalance int64, limit int) ([]*models.Vendor, error)
}

// OfferCounter reports how many offers a vendor received since a cutoff.
// Every created offer counts, however it was later resolved.
type OfferCounter interface {
	CountRecentByVendor(ctx context.Context, vendorID uuid.UUID, since time.Time) (int, error)
}

// RankedVendor is a candidate with its per-factor match breakdown.
type RankedVendor struct {
	Vendor    *models.Vendor
	Breakdown models.MatchBreakdown
}

func (r RankedVendor) MatchScore() int { return r.Breakdown.Total() }

// Matcher selects and ranks vendors for a qualified job.
type Matcher struct {
	Vendors    VendorFinder
	Offers     OfferCounter
	MinBalance int64
	Limit      int
}

func NewMatcher(vendors VendorFinder, offers OfferCounter, minBalance int64, limit int) *Matcher {
	return &Matcher{Vendors: vendors, Offers: offers, MinBalance: minBalance, Limit: limit}
}

// TopMatches returns the best vendors for the job, ranked by match score
// descending, capped at the count the job's tier allows. Ties keep candidate
// scan order.
func (m *Matcher) TopMatches(ctx context.Context, job *models.Job, score *models.QualificationScore) ([]RankedVendor, error) {
	candidates, err := m.Vendors.FindCandidates(ctx, job.Category, score.Overall, m.MinBalance, m.Limit)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	since := time.Now().Add(-rotationWindow)
	ranked := make([]RankedVendor, 0, len(candidates))
	for _, v := range candidates {
		recent, err := m.Offers.CountRecentByVendor(ctx, v.ID, since)
		if err != nil {
			return nil, fmt.Errorf("count recent offers for %s: %w", v.ID, err)
		}
		ranked = append(ranked, RankedVendor{
			Vendor: v,
			Breakdown: models.MatchBreakdown{
				Distance:    scoreDistance(v.Postcode, job.Postcode),
				Specialty:   scoreSpecialty(v.Services, job.Category),
				Budget:      scoreBudgetFit(v, job),
				Performance: scorePerformance(v),
				Rotation:    scoreRotation(recent),
			},
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MatchScore() > ranked[j].MatchScore()
	})

	n := models.VendorCountForTier(score.Tier)
	if len(ranked) < n {
		n = len(ranked)
	}
	return ranked[:n], nil
}

// scoreDistance compares coarse postcode prefixes: same three leading
// characters is the same area, same two the same region.
func scoreDistance(vendorPostcode, jobPostcode string) int {
	if vendorPostcode == "" || jobPostcode == "" {
		return 10
	}
	vp := postcodePrefix(vendorPostcode, 3)
	jp := postcodePrefix(jobPostcode, 3)
	if vp == jp {
		return 20
	}
	if postcodePrefix(vp, 2) == postcodePrefix(jp, 2) {
		return 15
	}
	return 5
}

func postcodePrefix(postcode string, n int) string {
	if len(postcode) > n {
		postcode = postcode[:n]
	}
	return strings.ToUpper(postcode)
}

func scoreSpecialty(services []string, category string) int {
	if len(services) == 0 {
		return 10
	}
	requested := strings.ToLower(category)
	lowered := make([]string, len(services))
	for i, s := range services {
		lowered[i] = strings.ToLower(s)
	}

	for _, s := range lowered {
		if s == requested || strings.Contains(s, requested) || strings.Contains(requested, s) {
			return 20
		}
	}

	for key, related := range relatedServices {
		if !strings.Contains(requested, key) {
			continue
		}
		for _, s := range lowered {
			for _, r := range related {
				if strings.Contains(s, r) {
					return 15
				}
			}
		}
	}

	return 5
}

// scoreBudgetFit checks the job's budget against the vendor's stated lead
// preferences. Too small disqualifies via score, not via a hard filter.
func scoreBudgetFit(v *models.Vendor, job *models.Job) int {
	var jobBudget int64
	switch {
	case job.BudgetMaxPence != nil:
		jobBudget = *job.BudgetMaxPence
	case job.BudgetMinPence != nil:
		jobBudget = *job.BudgetMinPence
	}
	if jobBudget == 0 {
		return 10
	}
	if v.MinBudgetPence != nil && jobBudget < *v.MinBudgetPence {
		return 0
	}
	if v.MaxBudgetPence != nil && jobBudget > *v.MaxBudgetPence {
		return 5
	}
	return 20
}

func scorePerformance(v *models.Vendor) int {
	score := v.ReputationScore/100*10 + v.WinRate*5

	switch {
	case v.AvgRating >= 4.5:
		score += 7
	case v.AvgRating >= 4.0:
		score += 5
	case v.AvgRating >= 3.5:
		score += 3
	}

	switch {
	case v.AvgResponseHours <= 0:
		// No response data yet.
	case v.AvgResponseHours <= 1:
		score += 5
	case v.AvgResponseHours <= 4:
		score += 3
	case v.AvgResponseHours <= 24:
		score += 1
	}

	if score > 20 {
		score = 20
	}
	return int(score)
}

// scoreRotation steps down with recent offer volume so a small set of
// vendors cannot monopolize supply.
func scoreRotation(recentOffers int) int {
	switch {
	case recentOffers == 0:
		return 20
	case recentOffers <= 2:
		return 15
	case recentOffers <= 5:
		return 10
	case recentOffers <= 10:
		return 5
	default:
		return 0
	}
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradematch/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for VendorFinder and OfferCounter.
// ---------------------------------------------------------------------------

type mockVendorFinder struct {
	vendors []*models.Vendor
	// captured FindCandidates arguments
	gotCategory   string
	gotQuality    int
	gotMinBalance int64
	gotLimit      int
}

func (m *mockVendorFinder) FindCandidates(_ context.Context, category string, qualityScore int, minBalance int64, limit int) ([]*models.Vendor, error) {
	m.gotCategory = category
	m.gotQuality = qualityScore
	m.gotMinBalance = minBalance
	m.gotLimit = limit
	return m.vendors, nil
}

type mockOfferCounter struct {
	counts map[uuid.UUID]int
}

func (m *mockOfferCounter) CountRecentByVendor(_ context.Context, vendorID uuid.UUID, _ time.Time) (int, error) {
	return m.counts[vendorID], nil
}

func vend(name string, opts func(*models.Vendor)) *models.Vendor {
	v := &models.Vendor{
		ID:       uuid.New(),
		Name:     name,
		Postcode: "SW1A 1AA",
		Services: []string{"plumbing"},
		Active:   true,
		Verified: true,
	}
	if opts != nil {
		opts(v)
	}
	return v
}

// ---------------------------------------------------------------------------
// 1. TestTopMatches_CountAndOrder
// ---------------------------------------------------------------------------

func TestTopMatches_CountAndOrder(t *testing.T) {
	// Six identical vendors except for reputation, which orders them.
	vendors := make([]*models.Vendor, 6)
	for i := range vendors {
		rep := float64(100 - i*10)
		vendors[i] = vend("v", func(v *models.Vendor) { v.ReputationScore = rep })
	}
	finder := &mockVendorFinder{vendors: vendors}
	counter := &mockOfferCounter{counts: map[uuid.UUID]int{}}
	m := NewMatcher(finder, counter, 500, 50)

	job := &models.Job{Category: "plumbing", Postcode: "SW1A 1AA", BudgetMaxPence: i64(20_000)}
	score := &models.QualificationScore{Overall: 65, Tier: models.TierStandard}

	ranked, err := m.TopMatches(context.Background(), job, score)
	if err != nil {
		t.Fatalf("TopMatches: %v", err)
	}

	// Standard tier selects 4 vendors.
	if len(ranked) != 4 {
		t.Fatalf("selected vendors: got %d, want 4", len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].MatchScore() > ranked[i-1].MatchScore() {
			t.Errorf("ranking not descending at %d: %d > %d", i, ranked[i].MatchScore(), ranked[i-1].MatchScore())
		}
	}
	// Highest reputation wins rank 1.
	if ranked[0].Vendor.ID != vendors[0].ID {
		t.Error("expected the top-reputation vendor first")
	}

	// Candidate query passes through the configured knobs.
	if finder.gotCategory != "plumbing" || finder.gotQuality != 65 || finder.gotMinBalance != 500 || finder.gotLimit != 50 {
		t.Errorf("candidate query args: %q %d %d %d", finder.gotCategory, finder.gotQuality, finder.gotMinBalance, finder.gotLimit)
	}
}

// ---------------------------------------------------------------------------
// 2. TestTopMatches_TierCounts
// ---------------------------------------------------------------------------

func TestTopMatches_TierCounts(t *testing.T) {
	vendors := make([]*models.Vendor, 8)
	for i := range vendors {
		vendors[i] = vend("v", nil)
	}
	m := NewMatcher(&mockVendorFinder{vendors: vendors}, &mockOfferCounter{}, 500, 50)
	job := &models.Job{Category: "plumbing"}

	tests := []struct {
		overall int
		want    int
	}{
		{85, 5}, {65, 4}, {40, 3},
	}
	for _, tt := range tests {
		score := &models.QualificationScore{Overall: tt.overall, Tier: models.TierForScore(tt.overall)}
		ranked, err := m.TopMatches(context.Background(), job, score)
		if err != nil {
			t.Fatalf("TopMatches(%d): %v", tt.overall, err)
		}
		if len(ranked) != tt.want {
			t.Errorf("overall %d: got %d vendors, want %d", tt.overall, len(ranked), tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// 3. TestTopMatches_RotationDemotes
// ---------------------------------------------------------------------------

func TestTopMatches_RotationDemotes(t *testing.T) {
	fresh := vend("fresh", nil)
	flooded := vend("flooded", nil)
	counter := &mockOfferCounter{counts: map[uuid.UUID]int{flooded.ID: 11}}
	m := NewMatcher(&mockVendorFinder{vendors: []*models.Vendor{flooded, fresh}}, counter, 500, 50)

	job := &models.Job{Category: "plumbing", Postcode: "SW1A 1AA"}
	score := &models.QualificationScore{Overall: 40, Tier: models.TierBasic}

	ranked, err := m.TopMatches(context.Background(), job, score)
	if err != nil {
		t.Fatalf("TopMatches: %v", err)
	}
	if ranked[0].Vendor.ID != fresh.ID {
		t.Error("vendor with no recent offers should outrank the flooded one")
	}
	diff := ranked[0].Breakdown.Rotation - ranked[1].Breakdown.Rotation
	if diff != 20 {
		t.Errorf("rotation gap: got %d, want 20", diff)
	}
}

// ---------------------------------------------------------------------------
// 4. Factor tables
// ---------------------------------------------------------------------------

func TestScoreDistance(t *testing.T) {
	tests := []struct {
		vendor, job string
		want        int
	}{
		{"SW1A 1AA", "SW1B 2BB", 20}, // same 3-char area
		{"SW2A 1AA", "SW1B 2BB", 15}, // same 2-char region
		{"M1 1AE", "SW1A 1AA", 5},
		{"", "SW1A 1AA", 10},
		{"SW1A 1AA", "", 10},
	}
	for _, tt := range tests {
		if got := scoreDistance(tt.vendor, tt.job); got != tt.want {
			t.Errorf("scoreDistance(%q,%q): got %d, want %d", tt.vendor, tt.job, got, tt.want)
		}
	}
}

func TestScoreSpecialty(t *testing.T) {
	tests := []struct {
		name     string
		services []string
		category string
		want     int
	}{
		{"exact", []string{"plumbing"}, "plumbing", 20},
		{"substring", []string{"emergency plumbing services"}, "plumbing", 20},
		{"synonym", []string{"heating engineer"}, "plumbing", 15},
		{"synonym electrical", []string{"electrician"}, "electrical", 15},
		{"unrelated", []string{"roofing"}, "plumbing", 5},
		{"no services", nil, "plumbing", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreSpecialty(tt.services, tt.category); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreBudgetFit(t *testing.T) {
	job := &models.Job{BudgetMaxPence: i64(30_000)}

	v := &models.Vendor{MinBudgetPence: i64(50_000)}
	if got := scoreBudgetFit(v, job); got != 0 {
		t.Errorf("below vendor minimum: got %d, want 0", got)
	}
	v = &models.Vendor{MaxBudgetPence: i64(20_000)}
	if got := scoreBudgetFit(v, job); got != 5 {
		t.Errorf("above vendor maximum: got %d, want 5", got)
	}
	v = &models.Vendor{MinBudgetPence: i64(10_000), MaxBudgetPence: i64(50_000)}
	if got := scoreBudgetFit(v, job); got != 20 {
		t.Errorf("within range: got %d, want 20", got)
	}
	if got := scoreBudgetFit(&models.Vendor{}, &models.Job{}); got != 10 {
		t.Errorf("no budget data: got %d, want 10", got)
	}
}

func TestScorePerformance(t *testing.T) {
	// Top everything: 10 + 5 + 7 + 5 = 27, capped at 20.
	best := &models.Vendor{ReputationScore: 100, WinRate: 1, AvgRating: 5, AvgResponseHours: 0.5}
	if got := scorePerformance(best); got != 20 {
		t.Errorf("best vendor: got %d, want 20", got)
	}

	// Middling: 5 + 1 + 3 + 1 = 10.
	mid := &models.Vendor{ReputationScore: 50, WinRate: 0.2, AvgRating: 3.5, AvgResponseHours: 12}
	if got := scorePerformance(mid); got != 10 {
		t.Errorf("middling vendor: got %d, want 10", got)
	}

	// Nothing known.
	if got := scorePerformance(&models.Vendor{}); got != 0 {
		t.Errorf("unknown vendor: got %d, want 0", got)
	}
}

func TestScoreRotation(t *testing.T) {
	tests := []struct {
		recent, want int
	}{
		{0, 20}, {1, 15}, {2, 15}, {3, 10}, {5, 10}, {6, 5}, {10, 5}, {11, 0},
	}
	for _, tt := range tests {
		if got := scoreRotation(tt.recent); got != tt.want {
			t.Errorf("scoreRotation(%d): got %d, want %d", tt.recent, got, tt.want)
		}
	}
}

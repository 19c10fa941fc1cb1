package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradematch/backend/internal/models"
)

// ScoreUpserter persists qualification scores. Recomputing a job's score
// overwrites the previous one.
type ScoreUpserter interface {
	Upsert(ctx context.Context, score *models.QualificationScore) error
}

// TrustReader loads the requester signals the scorer reads. Unknown
// requesters yield zero trust rather than an error.
type TrustReader interface {
	GetRequesterTrust(ctx context.Context, requesterID uuid.UUID) (models.RequesterTrust, error)
}

// Qualifier scores incoming jobs and persists the result.
type Qualifier struct {
	Scores ScoreUpserter
	Trust  TrustReader
}

func NewQualifier(scores ScoreUpserter, trust TrustReader) *Qualifier {
	return &Qualifier{Scores: scores, Trust: trust}
}

// QualifyJob computes the job's qualification score and upserts it. The
// computation itself is deterministic; only the upsert touches the database.
func (q *Qualifier) QualifyJob(ctx context.Context, job *models.Job) (*models.QualificationScore, error) {
	trust, err := q.Trust.GetRequesterTrust(ctx, job.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("load requester trust: %w", err)
	}
	score := ScoreJob(job, &trust)
	if err := q.Scores.Upsert(ctx, score); err != nil {
		return nil, fmt.Errorf("save qualification score: %w", err)
	}
	return score, nil
}

// ScoreJob is the pure scoring function: five 0–20 sub-scores summed to a
// 0–100 overall with a derived tier. A nil job scores zero at the basic tier
// so thin or malformed postings still flow through distribution.
func ScoreJob(job *models.Job, trust *models.RequesterTrust) *models.QualificationScore {
	score := &models.QualificationScore{
		Tier:         models.TierBasic,
		CalculatedAt: time.Now().UTC(),
	}
	if job == nil {
		return score
	}
	if trust == nil {
		trust = &models.RequesterTrust{}
	}

	score.JobID = job.ID
	score.BudgetScore = scoreBudget(job)
	score.DetailScore = scoreDetail(job)
	score.UrgencyScore = scoreUrgency(job.Urgency)
	score.TrustScore = scoreTrust(trust)
	score.LocationScore = scoreLocation(job.Postcode)
	score.Overall = score.BudgetScore + score.DetailScore + score.UrgencyScore + score.TrustScore + score.LocationScore
	score.Tier = models.TierForScore(score.Overall)
	return score
}

// scoreBudget rewards complete, tight budget ranges. A narrow range signals
// a requester who knows what the work costs.
func scoreBudget(job *models.Job) int {
	if job.BudgetMinPence != nil && job.BudgetMaxPence != nil {
		min, max := *job.BudgetMinPence, *job.BudgetMaxPence
		midpoint := (min + max) / 2
		if midpoint <= 0 {
			return 15
		}
		rangeRatio := float64(max-min) / float64(midpoint)
		if rangeRatio < 0.5 {
			return 20
		}
		if rangeRatio < 1.0 {
			return 18
		}
		return 15
	}
	if job.BudgetMinPence != nil || job.BudgetMaxPence != nil {
		return 15
	}
	if strings.Contains(job.Description, "£") {
		return 10
	}
	return 0
}

var specificsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d+\s*(m|meter|metre|cm|foot|feet|inch)`),
	regexp.MustCompile(`(?i)\d+\s*(sq|square)`),
	regexp.MustCompile(`(?i)(plaster|tile|brick|wood|concrete|steel)`),
	regexp.MustCompile(`(?i)(monday|tuesday|wednesday|thursday|friday|january|february|march)`),
	regexp.MustCompile(`(?i)\d+\s*(bedroom|bathroom|room|floor|storey)`),
}

// containsSpecifics reports whether the description mentions measurements,
// materials, dates or property details.
func containsSpecifics(description string) bool {
	for _, re := range specificsPatterns {
		if re.MatchString(description) {
			return true
		}
	}
	return false
}

func scoreDetail(job *models.Job) int {
	score := 0
	if job.PhotoCount > 0 {
		score += 5
	}
	switch n := len(job.Description); {
	case n > 300:
		score += 10
	case n > 100:
		score += 7
	case n > 30:
		score += 3
	}
	if containsSpecifics(job.Description) {
		score += 5
	}
	if score > 20 {
		score = 20
	}
	return score
}

func scoreUrgency(urgency string) int {
	u := strings.ToLower(urgency)
	switch {
	case u == "":
		return 10
	case strings.Contains(u, "emergency"), strings.Contains(u, "asap"), strings.Contains(u, "urgent"):
		return 20
	case strings.Contains(u, "week"):
		return 18
	case strings.Contains(u, "month"):
		return 15
	default:
		return 12
	}
}

func scoreTrust(trust *models.RequesterTrust) int {
	score := 0
	if trust.EmailVerified {
		score += 10
	}
	if trust.PhoneVerified {
		score += 5
	}
	history := trust.CompletedJobs * 3
	if history > 5 {
		history = 5
	}
	score += history
	if score > 20 {
		score = 20
	}
	return score
}

var (
	fullPostcodeRe    = regexp.MustCompile(`(?i)^[A-Z]{1,2}\d{1,2}[A-Z]?\d[A-Z]{2}$`)
	partialPostcodeRe = regexp.MustCompile(`(?i)^[A-Z]{1,2}\d{1,2}[A-Z]?$`)
)

// scoreLocation rewards postcode precision: a full UK postcode pins the job
// to a street, a partial one to a district.
func scoreLocation(postcode string) int {
	if postcode == "" {
		return 0
	}
	compact := strings.ReplaceAll(postcode, " ", "")
	if fullPostcodeRe.MatchString(compact) {
		return 20
	}
	if partialPostcodeRe.MatchString(compact) {
		return 15
	}
	if len(postcode) > 2 {
		return 10
	}
	return 0
}

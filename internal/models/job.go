package models

import (
	"time"

	"github.com/google/uuid"
)

// Job lifecycle statuses.
const (
	JobStatusOpen   = "open"
	JobStatusClosed = "closed"
)

type Job struct {
	ID             uuid.UUID  `json:"id"`
	RequesterID    uuid.UUID  `json:"requester_id"`
	Category       string     `json:"category"`
	Postcode       string     `json:"postcode"`
	BudgetMinPence *int64     `json:"budget_min_pence,omitempty"`
	BudgetMaxPence *int64     `json:"budget_max_pence,omitempty"`
	Urgency        string     `json:"urgency"`
	Description    string     `json:"description"`
	PhotoCount     int        `json:"photo_count"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BudgetMidpoint returns the midpoint of the job's budget range in pence, or
// the single figure when only one bound is given, or 0 when no budget is set.
func (j *Job) BudgetMidpoint() int64 {
	switch {
	case j.BudgetMinPence != nil && j.BudgetMaxPence != nil:
		return (*j.BudgetMinPence + *j.BudgetMaxPence) / 2
	case j.BudgetMaxPence != nil:
		return *j.BudgetMaxPence
	case j.BudgetMinPence != nil:
		return *j.BudgetMinPence
	default:
		return 0
	}
}

// RequesterTrust carries the requester signals the qualification scorer reads.
type RequesterTrust struct {
	EmailVerified bool `json:"email_verified"`
	PhoneVerified bool `json:"phone_verified"`
	CompletedJobs int  `json:"completed_jobs"`
}

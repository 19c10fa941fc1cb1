package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tradematch/backend/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type JobRepo struct {
	db DB
}

func NewJobRepo(db DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO jobs (id, requester_id, category, postcode, budget_min_pence, budget_max_pence, urgency, description, photo_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, j.ID, j.RequesterID, j.Category, j.Postcode, j.BudgetMinPence, j.BudgetMaxPence, j.Urgency, j.Description, j.PhotoCount, j.Status).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := r.db.QueryRow(ctx, `
		SELECT id, requester_id, category, postcode, budget_min_pence, budget_max_pence, urgency, description, photo_count, status, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id).Scan(&j.ID, &j.RequesterID, &j.Category, &j.Postcode, &j.BudgetMinPence, &j.BudgetMaxPence, &j.Urgency, &j.Description, &j.PhotoCount, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}

// GetRequesterTrust loads the trust signals the qualification scorer needs:
// verification flags plus the requester's count of closed jobs.
func (r *JobRepo) GetRequesterTrust(ctx context.Context, requesterID uuid.UUID) (models.RequesterTrust, error) {
	var t models.RequesterTrust
	err := r.db.QueryRow(ctx, `
		SELECT r.email_verified, r.phone_verified,
		       (SELECT COUNT(*) FROM jobs j WHERE j.requester_id = r.id AND j.status = 'closed')
		FROM requesters r WHERE r.id = $1
	`, requesterID).Scan(&t.EmailVerified, &t.PhoneVerified, &t.CompletedJobs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Unknown requester scores as untrusted rather than failing
			// distribution for thin postings.
			return models.RequesterTrust{}, nil
		}
		return models.RequesterTrust{}, fmt.Errorf("get requester trust: %w", err)
	}
	return t, nil
}

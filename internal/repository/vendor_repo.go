package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tradematch/backend/internal/models"
)

type VendorRepo struct {
	db DB
}

func NewVendorRepo(db DB) *VendorRepo {
	return &VendorRepo{db: db}
}

const vendorColumns = `id, name, email, postcode, services, active, verified, balance_pence, min_budget_pence, max_budget_pence, min_quality_score, reputation_score, win_rate, avg_rating, avg_response_hours, created_at, updated_at`

func scanVendor(row pgx.Row) (*models.Vendor, error) {
	var v models.Vendor
	err := row.Scan(&v.ID, &v.Name, &v.Email, &v.Postcode, &v.Services, &v.Active, &v.Verified, &v.BalancePence, &v.MinBudgetPence, &v.MaxBudgetPence, &v.MinQualityScore, &v.ReputationScore, &v.WinRate, &v.AvgRating, &v.AvgResponseHours, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VendorRepo) Create(ctx context.Context, v *models.Vendor) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO vendors (id, name, email, postcode, services, active, verified, balance_pence, min_budget_pence, max_budget_pence, min_quality_score, reputation_score, win_rate, avg_rating, avg_response_hours)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`, v.ID, v.Name, v.Email, v.Postcode, v.Services, v.Active, v.Verified, v.BalancePence, v.MinBudgetPence, v.MaxBudgetPence, v.MinQualityScore, v.ReputationScore, v.WinRate, v.AvgRating, v.AvgResponseHours).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *VendorRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	v, err := scanVendor(r.db.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("vendor %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	return v, nil
}

// FindCandidates returns vendors eligible to receive the lead: active and
// verified, holding at least minBalance, whose minimum-quality preference (if
// any) the job's score satisfies, and whose services match the category
// exactly or by substring. The result is capped to bound scoring cost.
func (r *VendorRepo) FindCandidates(ctx context.Context, category string, qualityScore int, minBalance int64, limit int) ([]*models.Vendor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+vendorColumns+`
		FROM vendors
		WHERE active = TRUE
		  AND verified = TRUE
		  AND balance_pence >= $1
		  AND (min_quality_score IS NULL OR $2 >= min_quality_score)
		  AND (cardinality(services) = 0 OR $3 = ANY(services) OR EXISTS (
		      SELECT 1 FROM unnest(services) s WHERE s ILIKE '%' || $3 || '%'
		  ))
		ORDER BY reputation_score DESC
		LIMIT $4
	`, minBalance, qualityScore, category, limit)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

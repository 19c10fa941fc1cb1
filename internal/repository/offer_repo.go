package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tradematch/backend/internal/models"
)

// ErrDuplicateOffer is returned when an offer for the same (job, vendor) pair
// already exists. The unique constraint is the race-resolution mechanism:
// callers re-read and use the existing row.
var ErrDuplicateOffer = errors.New("offer already exists for job and vendor")

type OfferRepo struct {
	db DB
}

func NewOfferRepo(db DB) *OfferRepo {
	return &OfferRepo{db: db}
}

const offerColumns = `id, job_id, vendor_id, match_score, distance_score, specialty_score, budget_score, performance_score, rotation_score, distance_miles, rank, price_pence, state, charged, refunded, refund_pence, refund_reason, decline_reason, created_at, expires_at, resolved_at`

func scanOffer(row pgx.Row) (*models.Offer, error) {
	var o models.Offer
	err := row.Scan(&o.ID, &o.JobID, &o.VendorID, &o.MatchScore,
		&o.Breakdown.Distance, &o.Breakdown.Specialty, &o.Breakdown.Budget, &o.Breakdown.Performance, &o.Breakdown.Rotation,
		&o.DistanceMiles, &o.Rank, &o.PricePence, &o.State, &o.Charged, &o.Refunded, &o.RefundPence, &o.RefundReason, &o.DeclineReason,
		&o.CreatedAt, &o.ExpiresAt, &o.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateTx inserts the offer inside the given transaction. A unique-constraint
// violation on (job_id, vendor_id) surfaces as ErrDuplicateOffer.
func (r *OfferRepo) CreateTx(ctx context.Context, tx pgx.Tx, o *models.Offer) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO offers (id, job_id, vendor_id, match_score, distance_score, specialty_score, budget_score, performance_score, rotation_score, distance_miles, rank, price_pence, state, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`, o.ID, o.JobID, o.VendorID, o.MatchScore,
		o.Breakdown.Distance, o.Breakdown.Specialty, o.Breakdown.Budget, o.Breakdown.Performance, o.Breakdown.Rotation,
		o.DistanceMiles, o.Rank, o.PricePence, o.State, o.ExpiresAt).Scan(&o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: job %s vendor %s", ErrDuplicateOffer, o.JobID, o.VendorID)
		}
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (r *OfferRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	o, err := scanOffer(r.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("offer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

func (r *OfferRepo) GetByJobVendor(ctx context.Context, jobID, vendorID uuid.UUID) (*models.Offer, error) {
	o, err := scanOffer(r.db.QueryRow(ctx, `
		SELECT `+offerColumns+` FROM offers WHERE job_id = $1 AND vendor_id = $2
	`, jobID, vendorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("offer for job %s vendor %s: %w", jobID, vendorID, ErrNotFound)
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

func (r *OfferRepo) queryOffers(ctx context.Context, sql string, args ...any) ([]*models.Offer, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()
	var out []*models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OfferRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Offer, error) {
	return r.queryOffers(ctx, `SELECT `+offerColumns+` FROM offers WHERE job_id = $1 ORDER BY rank`, jobID)
}

// ListOfferedByVendor returns the vendor's unresolved inbox. Offers past
// their expiry are excluded here even if the sweep has not flipped them yet.
func (r *OfferRepo) ListOfferedByVendor(ctx context.Context, vendorID uuid.UUID, now time.Time) ([]*models.Offer, error) {
	return r.queryOffers(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE vendor_id = $1 AND state = 'offered' AND expires_at > $2
		ORDER BY created_at DESC
	`, vendorID, now)
}

// CountRecentByVendor counts all offers created for the vendor since the
// given instant, regardless of how they resolved. Used for rotation fairness.
func (r *OfferRepo) CountRecentByVendor(ctx context.Context, vendorID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM offers WHERE vendor_id = $1 AND created_at > $2
	`, vendorID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent offers: %w", err)
	}
	return n, nil
}

// MarkAcceptedTx flips the offer to accepted+charged, conditionally on it
// still being offered. Returns ErrNotFound when the conditional update hits
// no row, which callers treat as a lost race.
func (r *OfferRepo) MarkAcceptedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE offers SET state = 'accepted', charged = TRUE, resolved_at = $2
		WHERE id = $1 AND state = 'offered'
	`, id, now)
	if err != nil {
		return fmt.Errorf("mark accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("offer %s no longer offered: %w", id, ErrNotFound)
	}
	return nil
}

func (r *OfferRepo) MarkDeclined(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE offers SET state = 'declined', decline_reason = $2, resolved_at = $3
		WHERE id = $1 AND state = 'offered'
	`, id, reason, now)
	if err != nil {
		return fmt.Errorf("mark declined: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("offer %s no longer offered: %w", id, ErrNotFound)
	}
	return nil
}

func (r *OfferRepo) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE offers SET state = 'expired', resolved_at = $2
		WHERE id = $1 AND state = 'offered'
	`, id, now)
	return err
}

// MarkRefundedTx records the compensating refund on an accepted offer.
func (r *OfferRepo) MarkRefundedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64, reason string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE offers SET refunded = TRUE, refund_pence = $2, refund_reason = $3
		WHERE id = $1 AND state = 'accepted' AND charged = TRUE AND refunded = FALSE
	`, id, amount, reason)
	if err != nil {
		return fmt.Errorf("mark refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("offer %s not refundable: %w", id, ErrNotFound)
	}
	return nil
}

// ExpirePast flips every offered row past its expiry. The cutoff comparison
// matches Offer.ExpiredBy.
func (r *OfferRepo) ExpirePast(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE offers SET state = 'expired', resolved_at = $1
		WHERE state = 'offered' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire offers: %w", err)
	}
	return tag.RowsAffected(), nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tradematch/backend/internal/ledger"
	"github.com/tradematch/backend/internal/models"
	"github.com/tradematch/backend/internal/repository"
)

// Sentinel errors handlers map to HTTP statuses.
var (
	ErrOfferResolved = errors.New("offer already resolved")
	ErrOfferExpired  = errors.New("offer expired")
	ErrJobClosed     = errors.New("job not open")
	ErrValidation    = errors.New("invalid request")
)

// TxBeginner opens a transaction. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DistributionJobRepo is the job repository interface used by the distributor.
type DistributionJobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// DistributionOfferRepo is the offer repository interface used by the
// distributor.
type DistributionOfferRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, o *models.Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	GetByJobVendor(ctx context.Context, jobID, vendorID uuid.UUID) (*models.Offer, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Offer, error)
	ListOfferedByVendor(ctx context.Context, vendorID uuid.UUID, now time.Time) ([]*models.Offer, error)
	MarkAcceptedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, now time.Time) error
	MarkDeclined(ctx context.Context, id uuid.UUID, reason string, now time.Time) error
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) error
	MarkRefundedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64, reason string) error
	ExpirePast(ctx context.Context, now time.Time) (int64, error)
}

// OfferNotifier is the outbound port for telling a vendor about a new offer.
// Delivery is at-least-once and must not affect the offer's own outcome.
type OfferNotifier interface {
	EnqueueOfferNotification(ctx context.Context, tx pgx.Tx, offer *models.Offer, job *models.Job) error
}

// AcceptResult reports a successful accept: the charge taken and the balance
// left behind.
type AcceptResult struct {
	Offer            *models.Offer `json:"offer"`
	ChargedPence     int64         `json:"charged_pence"`
	RemainingBalance int64         `json:"remaining_balance_pence"`
}

// Distributor drives a job from qualification through offer creation and
// each offer through its state machine.
type Distributor struct {
	DB        TxBeginner
	Jobs      DistributionJobRepo
	Offers    DistributionOfferRepo
	Qualifier *Qualifier
	Pricer    *PricingEngine
	Matcher   *Matcher
	Ledger    ledger.Service
	Notifier  OfferNotifier
	TTL       time.Duration
	Logger    *slog.Logger
}

func NewDistributor(
	db TxBeginner,
	jobs DistributionJobRepo,
	offers DistributionOfferRepo,
	qualifier *Qualifier,
	pricer *PricingEngine,
	matcher *Matcher,
	ledgerSvc ledger.Service,
	notifier OfferNotifier,
	ttl time.Duration,
	logger *slog.Logger,
) *Distributor {
	return &Distributor{
		DB:        db,
		Jobs:      jobs,
		Offers:    offers,
		Qualifier: qualifier,
		Pricer:    pricer,
		Matcher:   matcher,
		Ledger:    ledgerSvc,
		Notifier:  notifier,
		TTL:       ttl,
		Logger:    logger,
	}
}

// DistributeJob scores, prices, matches and creates offers for a job.
// The run is idempotent per (job, vendor): re-running after a partial failure
// creates only the offers still missing, and the uniqueness constraint
// resolves concurrent runs in favour of the existing row.
func (d *Distributor) DistributeJob(ctx context.Context, jobID uuid.UUID) ([]*models.Offer, error) {
	job, err := d.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusOpen {
		return nil, ErrJobClosed
	}

	score, err := d.Qualifier.QualifyJob(ctx, job)
	if err != nil {
		return nil, err
	}
	quote := d.Pricer.Price(job, score)

	// A previous run may have created some of the tier's offers before
	// failing. Those rows stand; only the shortfall is filled in.
	existing, err := d.Offers.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	want := models.VendorCountForTier(score.Tier)
	if len(existing) >= want {
		return existing, nil
	}

	ranked, err := d.Matcher.TopMatches(ctx, job, score)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 && len(existing) == 0 {
		d.Logger.Info("no eligible vendors for job", "job_id", jobID, "tier", score.Tier)
		return nil, nil
	}

	offered := make(map[uuid.UUID]bool, len(existing))
	for _, o := range existing {
		offered[o.VendorID] = true
	}

	now := time.Now().UTC()
	offers := append(make([]*models.Offer, 0, want), existing...)
	for _, rv := range ranked {
		if len(offers) >= want {
			break
		}
		if offered[rv.Vendor.ID] {
			continue
		}
		offer := &models.Offer{
			ID:         uuid.New(),
			JobID:      jobID,
			VendorID:   rv.Vendor.ID,
			MatchScore: rv.MatchScore(),
			Breakdown:  rv.Breakdown,
			Rank:       len(offers) + 1,
			PricePence: quote.PricePence,
			State:      models.OfferStateOffered,
			CreatedAt:  now,
			ExpiresAt:  now.Add(d.TTL),
		}
		created, err := d.createOffer(ctx, offer, job)
		if err != nil {
			return nil, err
		}
		offers = append(offers, created)
	}

	d.Logger.Info("job distributed",
		"job_id", jobID,
		"tier", score.Tier,
		"price_pence", quote.PricePence,
		"offers", len(offers),
		"carried", len(existing))
	return offers, nil
}

// createOffer persists one offer and enqueues its notification in the same
// transaction. A unique-constraint hit means a concurrent run already created
// this (job, vendor) offer; the existing row wins.
func (d *Distributor) createOffer(ctx context.Context, offer *models.Offer, job *models.Job) (*models.Offer, error) {
	tx, err := d.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin offer tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := d.Offers.CreateTx(ctx, tx, offer); err != nil {
		if errors.Is(err, repository.ErrDuplicateOffer) {
			return d.Offers.GetByJobVendor(ctx, offer.JobID, offer.VendorID)
		}
		return nil, err
	}

	if err := d.Notifier.EnqueueOfferNotification(ctx, tx, offer, job); err != nil {
		// Notification is best-effort relative to offer creation.
		d.Logger.Warn("enqueue offer notification failed",
			"offer_id", offer.ID, "vendor_id", offer.VendorID, "error", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit offer tx: %w", err)
	}
	return offer, nil
}

// ListVendorOffers returns the vendor's live offers. Rows past their expiry
// never surface here even before the sweep has flipped them.
func (d *Distributor) ListVendorOffers(ctx context.Context, vendorID uuid.UUID) ([]*models.Offer, error) {
	return d.Offers.ListOfferedByVendor(ctx, vendorID, time.Now().UTC())
}

// ListJobOffers returns every offer created for a job, in rank order,
// whatever state each has reached.
func (d *Distributor) ListJobOffers(ctx context.Context, jobID uuid.UUID) ([]*models.Offer, error) {
	return d.Offers.ListByJob(ctx, jobID)
}

// AcceptOffer charges the vendor and unlocks the lead for them, atomically.
// The debit and the state flip commit together or not at all. The job stays
// open: every ranked vendor can buy the same lead until their offer expires
// or the requester closes the job.
func (d *Distributor) AcceptOffer(ctx context.Context, jobID, vendorID uuid.UUID) (*AcceptResult, error) {
	offer, err := d.Offers.GetByJobVendor(ctx, jobID, vendorID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if offer.State != models.OfferStateOffered {
		return nil, ErrOfferResolved
	}
	if offer.ExpiredBy(now) {
		if err := d.Offers.MarkExpired(ctx, offer.ID, now); err != nil {
			d.Logger.Warn("mark expired on read failed", "offer_id", offer.ID, "error", err)
		}
		return nil, ErrOfferExpired
	}

	job, err := d.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusOpen {
		return nil, ErrJobClosed
	}

	tx, err := d.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin accept tx: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := d.Ledger.ChargeTx(ctx, tx, vendorID, offer.ID, offer.PricePence)
	if err != nil {
		return nil, err
	}
	if err := d.Offers.MarkAcceptedTx(ctx, tx, offer.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOfferResolved
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit accept tx: %w", err)
	}

	offer.State = models.OfferStateAccepted
	offer.Charged = true
	offer.ResolvedAt = &now

	d.Logger.Info("offer accepted",
		"offer_id", offer.ID,
		"vendor_id", vendorID,
		"charged_pence", offer.PricePence,
		"remaining_balance_pence", newBalance)
	return &AcceptResult{
		Offer:            offer,
		ChargedPence:     offer.PricePence,
		RemainingBalance: newBalance,
	}, nil
}

// DeclineOffer records a free decline. Nothing is charged.
func (d *Distributor) DeclineOffer(ctx context.Context, jobID, vendorID uuid.UUID, reason string) (*models.Offer, error) {
	offer, err := d.Offers.GetByJobVendor(ctx, jobID, vendorID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if offer.State != models.OfferStateOffered {
		return nil, ErrOfferResolved
	}
	if offer.ExpiredBy(now) {
		if err := d.Offers.MarkExpired(ctx, offer.ID, now); err != nil {
			d.Logger.Warn("mark expired on read failed", "offer_id", offer.ID, "error", err)
		}
		return nil, ErrOfferExpired
	}

	if err := d.Offers.MarkDeclined(ctx, offer.ID, reason, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOfferResolved
		}
		return nil, err
	}
	offer.State = models.OfferStateDeclined
	offer.DeclineReason = &reason
	offer.ResolvedAt = &now
	return offer, nil
}

// RefundOffer compensates a charged offer. The refund amount comes from the
// reason's policy fraction unless the operator overrides it; operator-priced
// reasons (goodwill, other) require an explicit amount.
func (d *Distributor) RefundOffer(ctx context.Context, offerID uuid.UUID, reason string, overridePence *int64) (*models.Offer, error) {
	if !models.ValidRefundReason(reason) {
		return nil, fmt.Errorf("unknown refund reason %q: %w", reason, ErrValidation)
	}
	offer, err := d.Offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.State != models.OfferStateAccepted || !offer.Charged || offer.Refunded {
		return nil, ErrOfferResolved
	}

	var amount int64
	if overridePence != nil {
		amount = *overridePence
	} else {
		fraction, ok := RefundFraction(reason)
		if !ok {
			return nil, fmt.Errorf("reason %q needs an explicit amount: %w", reason, ErrValidation)
		}
		amount = int64(float64(offer.PricePence) * fraction)
	}
	if amount <= 0 || amount > offer.PricePence {
		return nil, fmt.Errorf("refund amount %d out of range: %w", amount, ErrValidation)
	}

	tx, err := d.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin refund tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := d.Ledger.RefundTx(ctx, tx, offer.VendorID, offer.ID, amount, reason); err != nil {
		return nil, err
	}
	if err := d.Offers.MarkRefundedTx(ctx, tx, offer.ID, amount, reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOfferResolved
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit refund tx: %w", err)
	}

	offer.Refunded = true
	offer.RefundPence = &amount
	offer.RefundReason = &reason

	d.Logger.Info("offer refunded",
		"offer_id", offer.ID,
		"vendor_id", offer.VendorID,
		"reason", reason,
		"severity", models.RefundReasonSeverity[reason],
		"amount_pence", amount)
	return offer, nil
}

// ExpireOffers flips every offered row past its expiry. Run periodically;
// reads are already expiry-aware, so cadence only affects bookkeeping lag.
func (d *Distributor) ExpireOffers(ctx context.Context, now time.Time) (int64, error) {
	n, err := d.Offers.ExpirePast(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.Logger.Info("expired offers", "count", n)
	}
	return n, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tradematch/backend/internal/models"
)

// ErrInsufficientFunds is returned when a debit would take a vendor balance
// below zero.
var ErrInsufficientFunds = errInsufficientFunds

// ErrInvalidAmount is returned for zero or negative amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// Store is the persistence port the service drives. *Repository implements
// it against Postgres; tests substitute an in-memory store.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	DebitBalanceTx(ctx context.Context, tx pgx.Tx, vendorID uuid.UUID, amount int64) (int64, error)
	BalanceForUpdateTx(ctx context.Context, tx pgx.Tx, vendorID uuid.UUID) (int64, error)
	CreditBalanceTx(ctx context.Context, tx pgx.Tx, vendorID uuid.UUID, amount int64) (int64, error)
	InsertEntryTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	InsertLotTx(ctx context.Context, tx pgx.Tx, lot *models.CreditLot) error
	OpenLotsForUpdateTx(ctx context.Context, tx pgx.Tx, vendorID uuid.UUID) ([]*models.CreditLot, error)
	DrainLotTx(ctx context.Context, tx pgx.Tx, lotID uuid.UUID, amount int64) error
	InsertLotUsageTx(ctx context.Context, tx pgx.Tx, lotID, vendorID uuid.UUID, amount int64, purpose string) error
	ExpiredLotVendors(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	ExpiredLotsForUpdateTx(ctx context.Context, tx pgx.Tx, vendorID uuid.UUID, now time.Time) ([]*models.CreditLot, error)
	Balance(ctx context.Context, vendorID uuid.UUID) (int64, error)
	SumEntries(ctx context.Context, vendorID uuid.UUID) (int64, error)
	EntriesByVendor(ctx context.Context, vendorID uuid.UUID) ([]*models.LedgerEntry, error)
}

// ConsumeResult reports the outcome of a credit consumption. Consumed may be
// less than Requested when the vendor's lots do not cover the full amount.
type ConsumeResult struct {
	RequestedPence int64 `json:"requested_pence"`
	ConsumedPence  int64 `json:"consumed_pence"`
	RemainingPence int64 `json:"remaining_pence"`
}

// ReconcileReport compares the cached vendor balance against the signed sum
// of ledger entries.
type ReconcileReport struct {
	VendorID      uuid.UUID `json:"vendor_id"`
	BalancePence  int64     `json:"balance_pence"`
	EntrySumPence int64     `json:"entry_sum_pence"`
	Consistent    bool      `json:"consistent"`
}

type Service interface {
	// ChargeTx debits the vendor for an accepted offer inside the caller's
	// transaction and records a charge entry. Returns the new balance.
	ChargeTx(ctx context.Context, tx pgx.Tx, vendorID, offerID uuid.UUID, amount int64) (int64, error)
	// RefundTx restores amount to the vendor inside the caller's transaction
	// and records a refund entry carrying the reason code.
	RefundTx(ctx context.Context, tx pgx.Tx, vendorID, offerID uuid.UUID, amount int64, reason string) (int64, error)
	// ChargeVendor is the standalone variant of ChargeTx with its own
	// transaction, for direct operator charges.
	ChargeVendor(ctx context.Context, vendorID uuid.UUID, offerID *uuid.UUID, amount int64, reason string) (int64, error)
	// IssueLot grants a new credit lot and raises the balance by its amount.
	IssueLot(ctx context.Context, vendorID uuid.UUID, amount int64, expiresAt *time.Time, paymentRef *string) (*models.CreditLot, error)
	// ConsumeCredit draws amount from the vendor's open lots,
	// earliest-expiry-first, draining partially filled lots before moving on.
	// The draw is capped at the vendor's balance as well as the lot holdings,
	// so a shortfall comes back as a partial result, never an error.
	ConsumeCredit(ctx context.Context, vendorID uuid.UUID, amount int64, purpose string) (*ConsumeResult, error)
	// ExpireLots zeroes every lot past its expiry and deducts the forfeited
	// credit from the owning balances, one vendor per transaction. Returns
	// the number of lots expired.
	ExpireLots(ctx context.Context, now time.Time) (int, error)
	Balance(ctx context.Context, vendorID uuid.UUID) (int64, error)
	Entries(ctx context.Context, vendorID uuid.UUID) ([]*models.LedgerEntry, error)
	Reconcile(ctx context.Context, vendorID uuid.UUID) (*ReconcileReport, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

func (s *service) ChargeTx(ctx context.Context, tx pgx.Tx, vendorID, offerID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	newBalance, err := s.store.DebitBalanceTx(ctx, tx, vendorID, amount)
	if err != nil {
		return 0, err
	}
	entry := &models.LedgerEntry{
		ID:          uuid.New(),
		VendorID:    vendorID,
		OfferID:     &offerID,
		EntryType:   models.EntryCharge,
		AmountPence: -amount,
		ReasonCode:  "lead_acceptance",
	}
	if err := s.store.InsertEntryTx(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("record charge: %w", err)
	}
	return newBalance, nil
}

func (s *service) RefundTx(ctx context.Context, tx pgx.Tx, vendorID, offerID uuid.UUID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	newBalance, err := s.store.CreditBalanceTx(ctx, tx, vendorID, amount)
	if err != nil {
		return 0, err
	}
	entry := &models.LedgerEntry{
		ID:          uuid.New(),
		VendorID:    vendorID,
		OfferID:     &offerID,
		EntryType:   models.EntryRefund,
		AmountPence: amount,
		ReasonCode:  reason,
	}
	if err := s.store.InsertEntryTx(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("record refund: %w", err)
	}
	return newBalance, nil
}

func (s *service) ChargeVendor(ctx context.Context, vendorID uuid.UUID, offerID *uuid.UUID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin charge: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := s.store.DebitBalanceTx(ctx, tx, vendorID, amount)
	if err != nil {
		return 0, err
	}
	entry := &models.LedgerEntry{
		ID:          uuid.New(),
		VendorID:    vendorID,
		OfferID:     offerID,
		EntryType:   models.EntryCharge,
		AmountPence: -amount,
		ReasonCode:  reason,
	}
	if err := s.store.InsertEntryTx(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("record charge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit charge: %w", err)
	}
	return newBalance, nil
}

func (s *service) IssueLot(ctx context.Context, vendorID uuid.UUID, amount int64, expiresAt *time.Time, paymentRef *string) (*models.CreditLot, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin issue: %w", err)
	}
	defer tx.Rollback(ctx)

	lot := &models.CreditLot{
		ID:             uuid.New(),
		VendorID:       vendorID,
		OriginalPence:  amount,
		RemainingPence: amount,
		ExpiresAt:      expiresAt,
	}
	if err := s.store.InsertLotTx(ctx, tx, lot); err != nil {
		return nil, fmt.Errorf("insert lot: %w", err)
	}
	if _, err := s.store.CreditBalanceTx(ctx, tx, vendorID, amount); err != nil {
		return nil, err
	}
	entry := &models.LedgerEntry{
		ID:          uuid.New(),
		VendorID:    vendorID,
		EntryType:   models.EntryLotIssued,
		AmountPence: amount,
		ReasonCode:  "credit_grant",
		PaymentRef:  paymentRef,
	}
	if err := s.store.InsertEntryTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("record grant: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit issue: %w", err)
	}
	return lot, nil
}

func (s *service) ConsumeCredit(ctx context.Context, vendorID uuid.UUID, amount int64, purpose string) (*ConsumeResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin consume: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lots can nominally hold more than the balance when direct charges have
	// spent credit without draining them. The balance is the source of truth,
	// so the draw is capped at whichever is lower.
	balance, err := s.store.BalanceForUpdateTx(ctx, tx, vendorID)
	if err != nil {
		return nil, err
	}
	target := amount
	if target > balance {
		target = balance
	}

	lots, err := s.store.OpenLotsForUpdateTx(ctx, tx, vendorID)
	if err != nil {
		return nil, err
	}

	var consumed int64
	for _, lot := range lots {
		if consumed >= target {
			break
		}
		draw := target - consumed
		if draw > lot.RemainingPence {
			draw = lot.RemainingPence
		}
		if err := s.store.DrainLotTx(ctx, tx, lot.ID, draw); err != nil {
			return nil, fmt.Errorf("drain lot: %w", err)
		}
		if err := s.store.InsertLotUsageTx(ctx, tx, lot.ID, vendorID, draw, purpose); err != nil {
			return nil, fmt.Errorf("record lot usage: %w", err)
		}
		consumed += draw
	}

	if consumed > 0 {
		if _, err := s.store.DebitBalanceTx(ctx, tx, vendorID, consumed); err != nil {
			return nil, err
		}
		// One aggregate ledger entry per consumption; per-lot detail lives
		// in credit_lot_usage.
		entry := &models.LedgerEntry{
			ID:          uuid.New(),
			VendorID:    vendorID,
			EntryType:   models.EntryLotConsumed,
			AmountPence: -consumed,
			ReasonCode:  purpose,
		}
		if err := s.store.InsertEntryTx(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("record consumption: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit consume: %w", err)
	}
	return &ConsumeResult{
		RequestedPence: amount,
		ConsumedPence:  consumed,
		RemainingPence: amount - consumed,
	}, nil
}

func (s *service) ExpireLots(ctx context.Context, now time.Time) (int, error) {
	vendors, err := s.store.ExpiredLotVendors(ctx, now)
	if err != nil {
		return 0, err
	}

	// One transaction per vendor: a failure forfeits nothing for that vendor
	// but leaves every other vendor's sweep intact.
	var expired int
	var errs []error
	for _, vendorID := range vendors {
		n, err := s.expireVendorLots(ctx, vendorID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("vendor %s: %w", vendorID, err))
			continue
		}
		expired += n
	}
	return expired, errors.Join(errs...)
}

func (s *service) expireVendorLots(ctx context.Context, vendorID uuid.UUID, now time.Time) (int, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin expire: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := s.store.BalanceForUpdateTx(ctx, tx, vendorID)
	if err != nil {
		return 0, err
	}
	lots, err := s.store.ExpiredLotsForUpdateTx(ctx, tx, vendorID, now)
	if err != nil {
		return 0, err
	}
	for _, lot := range lots {
		// The lot is zeroed in full; the forfeited debit is capped at the
		// balance, since direct charges may already have spent part of the
		// lot's credit without draining it.
		forfeit := lot.RemainingPence
		if forfeit > balance {
			forfeit = balance
		}
		if err := s.store.DrainLotTx(ctx, tx, lot.ID, lot.RemainingPence); err != nil {
			return 0, fmt.Errorf("zero lot: %w", err)
		}
		if forfeit == 0 {
			continue
		}
		if _, err := s.store.DebitBalanceTx(ctx, tx, vendorID, forfeit); err != nil {
			return 0, err
		}
		balance -= forfeit
		entry := &models.LedgerEntry{
			ID:          uuid.New(),
			VendorID:    vendorID,
			EntryType:   models.EntryLotExpired,
			AmountPence: -forfeit,
			ReasonCode:  "credit_expiry",
		}
		if err := s.store.InsertEntryTx(ctx, tx, entry); err != nil {
			return 0, fmt.Errorf("record expiry: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit expire: %w", err)
	}
	return len(lots), nil
}

func (s *service) Balance(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	return s.store.Balance(ctx, vendorID)
}

func (s *service) Entries(ctx context.Context, vendorID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.store.EntriesByVendor(ctx, vendorID)
}

func (s *service) Reconcile(ctx context.Context, vendorID uuid.UUID) (*ReconcileReport, error) {
	balance, err := s.store.Balance(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	sum, err := s.store.SumEntries(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	return &ReconcileReport{
		VendorID:      vendorID,
		BalancePence:  balance,
		EntrySumPence: sum,
		Consistent:    balance == sum,
	}, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tradematch/backend/internal/models"
)

var errInsufficientFunds = errors.New("insufficient funds")

// DB is the subset of pgxpool.Pool the ledger repository uses. pgxmock
// satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// DebitBalanceTx atomically deducts amount if the balance covers it. The
// conditional update is the concurrency boundary: two concurrent debits
// against a balance covering only one cannot both succeed.
func (r *Repository) DebitBalanceTx(ctx context.Context, tx pgx.Tx, vendorID uuid.UUID, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE vendors SET balance_pence = balance_pence - $1, updated_at = now()
		WHERE id = $2 AND balance_pence >= $1
		RETURNING balance_pence
	`, amount, vendorID).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errInsufficientFunds
		}
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	return newBalance, nil
}

// BalanceForUpdateTx locks the vendor row and returns the current balance.
// Callers that cap a debit at the balance must read it through this so the
// figure cannot move under them before the debit lands.
func (r *Repository) BalanceForUpdateTx(ctx context.Context, tx pgx.Tx, vendorID uuid.UUID) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `
		SELECT balance_pence FROM vendors WHERE id = $1 FOR UPDATE
	`, vendorID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("lock balance: %w", err)
	}
	return balance, nil
}

// CreditBalanceTx adds amount to the vendor balance and returns the result.
func (r *Repository) CreditBalanceTx(ctx context.Context, tx pgx.Tx, vendorID uuid.UUID, amount int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE vendors SET balance_pence = balance_pence + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance_pence
	`, amount, vendorID).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return newBalance, nil
}

func (r *Repository) InsertEntryTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, vendor_id, offer_id, entry_type, amount_pence, reason_code, payment_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.VendorID, e.OfferID, e.EntryType, e.AmountPence, e.ReasonCode, e.PaymentRef).Scan(&e.CreatedAt)
}

func (r *Repository) InsertLotTx(ctx context.Context, tx pgx.Tx, lot *models.CreditLot) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_lots (id, vendor_id, original_pence, remaining_pence, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, lot.ID, lot.VendorID, lot.OriginalPence, lot.RemainingPence, lot.ExpiresAt).Scan(&lot.CreatedAt)
}

// OpenLotsForUpdateTx locks and returns the vendor's non-empty lots in
// consumption order: earliest expiry first, then oldest created. Lots
// without an expiry sort last.
func (r *Repository) OpenLotsForUpdateTx(ctx context.Context, tx pgx.Tx, vendorID uuid.UUID) ([]*models.CreditLot, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, vendor_id, original_pence, remaining_pence, expires_at, created_at
		FROM credit_lots
		WHERE vendor_id = $1 AND remaining_pence > 0
		ORDER BY expires_at ASC NULLS LAST, created_at ASC
		FOR UPDATE
	`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	defer rows.Close()

	var lots []*models.CreditLot
	for rows.Next() {
		var lot models.CreditLot
		if err := rows.Scan(&lot.ID, &lot.VendorID, &lot.OriginalPence, &lot.RemainingPence, &lot.ExpiresAt, &lot.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, &lot)
	}
	return lots, rows.Err()
}

func (r *Repository) DrainLotTx(ctx context.Context, tx pgx.Tx, lotID uuid.UUID, amount int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE credit_lots SET remaining_pence = remaining_pence - $1 WHERE id = $2
	`, amount, lotID)
	return err
}

func (r *Repository) InsertLotUsageTx(ctx context.Context, tx pgx.Tx, lotID, vendorID uuid.UUID, amount int64, purpose string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_lot_usage (id, lot_id, vendor_id, amount_pence, purpose)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), lotID, vendorID, amount, purpose)
	return err
}

// ExpiredLotVendors returns the vendors holding at least one lot past its
// expiry. The expiry sweep works through these one vendor at a time so a
// failure on one vendor cannot hold up the rest.
func (r *Repository) ExpiredLotVendors(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT vendor_id FROM credit_lots
		WHERE expires_at IS NOT NULL AND expires_at <= $1 AND remaining_pence > 0
	`, now)
	if err != nil {
		return nil, fmt.Errorf("select expired-lot vendors: %w", err)
	}
	defer rows.Close()

	var vendors []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, id)
	}
	return vendors, rows.Err()
}

// ExpiredLotsForUpdateTx locks the vendor's lots whose expiry has passed and
// which still hold credit.
func (r *Repository) ExpiredLotsForUpdateTx(ctx context.Context, tx pgx.Tx, vendorID uuid.UUID, now time.Time) ([]*models.CreditLot, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, vendor_id, original_pence, remaining_pence, expires_at, created_at
		FROM credit_lots
		WHERE vendor_id = $1 AND expires_at IS NOT NULL AND expires_at <= $2 AND remaining_pence > 0
		FOR UPDATE
	`, vendorID, now)
	if err != nil {
		return nil, fmt.Errorf("select expired lots: %w", err)
	}
	defer rows.Close()

	var lots []*models.CreditLot
	for rows.Next() {
		var lot models.CreditLot
		if err := rows.Scan(&lot.ID, &lot.VendorID, &lot.OriginalPence, &lot.RemainingPence, &lot.ExpiresAt, &lot.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, &lot)
	}
	return lots, rows.Err()
}

func (r *Repository) Balance(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance_pence FROM vendors WHERE id = $1`, vendorID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// SumEntries returns the signed sum of the vendor's ledger entries. The
// cached vendor balance must equal this sum at all times.
func (r *Repository) SumEntries(ctx context.Context, vendorID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_pence), 0) FROM ledger_entries WHERE vendor_id = $1
	`, vendorID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum entries: %w", err)
	}
	return sum, nil
}

func (r *Repository) EntriesByVendor(ctx context.Context, vendorID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, vendor_id, offer_id, entry_type, amount_pence, reason_code, payment_ref, created_at
		FROM ledger_entries WHERE vendor_id = $1 ORDER BY created_at DESC
	`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.VendorID, &e.OfferID, &e.EntryType, &e.AmountPence, &e.ReasonCode, &e.PaymentRef, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

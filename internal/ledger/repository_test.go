package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerMock(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewRepository(mock)
}

func TestDebitBalanceTx(t *testing.T) {
	mock, repo := newLedgerMock(t)
	ctx := context.Background()
	vendorID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE vendors SET balance_pence = balance_pence - \$1`).
		WithArgs(int64(500), vendorID).
		WillReturnRows(pgxmock.NewRows([]string{"balance_pence"}).AddRow(int64(1500)))
	mock.ExpectCommit()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	balance, err := repo.DebitBalanceTx(ctx, tx, vendorID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), balance)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitBalanceTx_InsufficientFunds(t *testing.T) {
	// The conditional update returns no row when the balance cannot cover the
	// debit. Nothing is written.
	mock, repo := newLedgerMock(t)
	ctx := context.Background()
	vendorID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE vendors SET balance_pence = balance_pence - \$1`).
		WithArgs(int64(500), vendorID).
		WillReturnRows(pgxmock.NewRows([]string{"balance_pence"}))
	mock.ExpectRollback()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	_, err = repo.DebitBalanceTx(ctx, tx, vendorID, 500)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditBalanceTx(t *testing.T) {
	mock, repo := newLedgerMock(t)
	ctx := context.Background()
	vendorID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE vendors SET balance_pence = balance_pence \+ \$1`).
		WithArgs(int64(250), vendorID).
		WillReturnRows(pgxmock.NewRows([]string{"balance_pence"}).AddRow(int64(750)))
	mock.ExpectCommit()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	balance, err := repo.CreditBalanceTx(ctx, tx, vendorID, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(750), balance)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceForUpdateTx(t *testing.T) {
	mock, repo := newLedgerMock(t)
	ctx := context.Background()
	vendorID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT balance_pence FROM vendors WHERE id = \$1 FOR UPDATE`).
		WithArgs(vendorID).
		WillReturnRows(pgxmock.NewRows([]string{"balance_pence"}).AddRow(int64(400)))
	mock.ExpectRollback()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	balance, err := repo.BalanceForUpdateTx(ctx, tx, vendorID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)
	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenLotsForUpdateTx(t *testing.T) {
	mock, repo := newLedgerMock(t)
	ctx := context.Background()
	vendorID := uuid.New()

	soon := time.Now().Add(time.Hour)
	lotA, lotB := uuid.New(), uuid.New()
	rows := pgxmock.NewRows([]string{"id", "vendor_id", "original_pence", "remaining_pence", "expires_at", "created_at"}).
		AddRow(lotA, vendorID, int64(1000), int64(400), &soon, time.Now().Add(-time.Hour)).
		AddRow(lotB, vendorID, int64(500), int64(500), (*time.Time)(nil), time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM credit_lots`).
		WithArgs(vendorID).
		WillReturnRows(rows)
	mock.ExpectRollback()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	lots, err := repo.OpenLotsForUpdateTx(ctx, tx, vendorID)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, lotA, lots[0].ID)
	assert.Equal(t, int64(400), lots[0].RemainingPence)
	assert.Nil(t, lots[1].ExpiresAt)
	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumEntries(t *testing.T) {
	mock, repo := newLedgerMock(t)
	vendorID := uuid.New()

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_pence\), 0\) FROM ledger_entries`).
		WithArgs(vendorID).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(650)))

	sum, err := repo.SumEntries(context.Background(), vendorID)
	require.NoError(t, err)
	assert.Equal(t, int64(650), sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}
